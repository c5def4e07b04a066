package tui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIconsWithoutColor(t *testing.T) {
	assert.Equal(t, "✅", SuccessIcon(false))
	assert.Equal(t, "❌", ErrorIcon(false))
	assert.Equal(t, "⚠️", WarningIcon(false))
}

func TestIconsWithColorStillContainGlyph(t *testing.T) {
	assert.Contains(t, SuccessIcon(true), "✅")
	assert.Contains(t, ErrorIcon(true), "❌")
	assert.Contains(t, WarningIcon(true), "⚠️")
}

func TestIsTerminalWriterNonFile(t *testing.T) {
	assert.False(t, IsTerminalWriter(&bytes.Buffer{}))
}

func TestIsTerminalReaderNonFile(t *testing.T) {
	assert.False(t, IsTerminalReader(bytes.NewReader(nil)))
}

func TestIsTerminalWriterWithOverride(t *testing.T) {
	restore := SetIsTerminalFuncForTesting(func(int) bool { return true })
	defer restore()

	assert.True(t, IsTerminalWriter(os.Stdout))
}
