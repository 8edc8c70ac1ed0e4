package logger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go328mon/internal/logger"
)

func TestLoggerWriteAndTail(t *testing.T) {
	log := logger.New(100)
	w := &strings.Builder{}

	assert.False(t, log.Write(w))
	assert.Equal(t, "", w.String())

	log.Log("test", "this is a test")
	require.True(t, log.Write(w))
	assert.Equal(t, "test: this is a test\n", w.String())

	w.Reset()
	log.Log("test2", "this is another test")
	log.Write(w)
	assert.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	// asking for too many entries is fine
	w.Reset()
	log.Tail(w, 100)
	assert.Equal(t, "test: this is a test\ntest2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 1)
	assert.Equal(t, "test2: this is another test\n", w.String())

	w.Reset()
	log.Tail(w, 0)
	assert.Equal(t, "", w.String())
}

func TestLoggerFoldsRepeats(t *testing.T) {
	log := logger.New(10)
	log.Log("bus", "could not parse a message")
	log.Log("bus", "could not parse a message")
	log.Log("bus", "could not parse a message")

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Repeated)
	assert.Equal(t, "bus: could not parse a message (repeat x3)\n", entries[0].String())
}

func TestLoggerStripsNewlines(t *testing.T) {
	log := logger.New(10)
	log.Logf("rpc", "line one\nline %d", 2)
	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "line oneline 2", entries[0].Detail)
}

func TestLoggerKeepsMaximum(t *testing.T) {
	log := logger.New(3)
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		log.Log("t", d)
	}
	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Detail)
	assert.Equal(t, "e", entries[2].Detail)
}

func TestLoggerEcho(t *testing.T) {
	log := logger.New(10)
	w := &strings.Builder{}
	log.SetEcho(w)
	log.Log("driver", "run")
	log.Log("driver", "run")
	assert.Equal(t, "driver: run\ndriver: run (repeat x2)\n", w.String())

	log.SetEcho(nil)
	log.Log("driver", "stop")
	assert.NotContains(t, w.String(), "stop")
}

func TestNilLoggerIsSilent(t *testing.T) {
	var log *logger.Logger
	assert.NotPanics(t, func() { log.Log("x", "y") })
}
