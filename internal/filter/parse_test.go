package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	filterFile := filepath.Join(dir, "filter.rules")

	content := `# This is a comment
+ *.go
- *.log

- build/
noprefix.txt
`
	require.NoError(t, os.WriteFile(filterFile, []byte(content), 0o644))

	c := NewChain()
	require.NoError(t, c.LoadFile(filterFile))

	require.Equal(t, 4, c.Len())
	assert.True(t, c.rules[0].Include)
	assert.False(t, c.rules[1].Include)
	assert.False(t, c.rules[2].Include)
	assert.False(t, c.rules[3].Include)

	assert.True(t, c.Match("main.go", false))
	assert.False(t, c.Match("app.log", false))
	assert.False(t, c.Match("build", true))
	assert.False(t, c.Match("noprefix.txt", false))
}

func TestLoadFileNotExists(t *testing.T) {
	c := NewChain()
	assert.Error(t, c.LoadFile("/nonexistent/path"))
}

func TestParseOnlyComments(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.Parse(strings.NewReader("# only comments\n\n")))
	assert.True(t, c.Empty())
}

func TestParseReportsLine(t *testing.T) {
	c := NewChain()
	err := c.Parse(strings.NewReader("- *.tmp\n+ [broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
