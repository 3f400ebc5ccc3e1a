package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)

	p.Table([]string{"ID", "STATUS"}, [][]string{
		{"a", "active"},
		{"bcdef", "deleted"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "ID     STATUS", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "-----  -------", strings.TrimRight(lines[1], " "))
	assert.Equal(t, "bcdef  deleted", strings.TrimRight(lines[3], " "))
}

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Table([]string{"ID"}, nil)
	assert.Empty(t, buf.String())
}

func TestColor(t *testing.T) {
	var plain, colored bytes.Buffer
	New(&plain, false).Success("merged")
	newWithProfile(&colored, termenv.ANSI256).Success("merged")

	assert.Equal(t, "✓ merged\n", plain.String())
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), "merged")
}

func TestNoColorStripsStyles(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, false)
	p.Header("co-001")
	p.Warning("branch is locked")
	p.Error("merge failed")
	p.Muted("2 entries")
	p.Table([]string{"ID"}, [][]string{{"a"}})

	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "  co-001  ")
	assert.Contains(t, buf.String(), "⚠ branch is locked")
	assert.Contains(t, buf.String(), "✗ merge failed")
}

func TestTable_WideCells(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Table([]string{"NAME", "N"}, [][]string{{"Bétonnage", "1"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "NAME       N", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "Bétonnage  1", strings.TrimRight(lines[2], " "))
}
