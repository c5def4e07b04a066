package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogRespectsQuiet(t *testing.T) {
	var out, errOut bytes.Buffer
	log := New(&out, &errOut, true, false)

	log.Log("hidden", false)
	assert.Empty(t, out.String())

	log.Log("shown", true)
	assert.Equal(t, "shown\n", out.String())
}

func TestDebugOnlyInDebugMode(t *testing.T) {
	var out, errOut bytes.Buffer

	New(&out, &errOut, false, false).Debug("nope")
	assert.Empty(t, out.String())

	New(&out, &errOut, false, true).Debug("yes")
	assert.Equal(t, "yes\n", out.String())
}

func TestQuietDebugStillLogs(t *testing.T) {
	var out, errOut bytes.Buffer
	log := New(&out, &errOut, true, true)

	log.Log("visible", false)
	assert.Equal(t, "visible\n", out.String())
}

func TestWarnAndErrorGoToErrWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	log := New(&out, &errOut, true, false)

	log.Warn("careful")
	log.Error("broken")
	log.Errorf("%s: %d\n", "code", 7)

	assert.Empty(t, out.String())
	assert.Equal(t, "careful\nbroken\ncode: 7\n", errOut.String())
}
