// Package fingerprint computes and memoizes content digests used to decide
// whether a replica file matches its source.
package fingerprint

import (
	"encoding/hex"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Size is the length in bytes of a Fingerprint.
const Size = 32

const chunkSize = 32 * 1024

// Fingerprint is the BLAKE3-256 digest of a file's full content.
type Fingerprint [Size]byte

// String returns the hex-encoded digest.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Compute hashes the file at path. ok is false when the file cannot be opened
// or read; a file that disappears between listing and hashing is an ordinary
// outcome, not an error.
func Compute(fsys afero.Fs, path string) (fp Fingerprint, ok bool) {
	f, err := fsys.Open(path)
	if err != nil {
		return Fingerprint{}, false
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return Fingerprint{}, false
	}

	copy(fp[:], h.Sum(nil))
	return fp, true
}

// Equal reports whether both sides have a fingerprint and the digests match.
// A missing fingerprint on either side is never equal to anything.
func Equal(a Fingerprint, aOK bool, b Fingerprint, bOK bool) bool {
	return aOK && bOK && a == b
}
