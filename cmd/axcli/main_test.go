package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacekchmiel/dynamixel-go/trace"
)

func readCapture(t *testing.T, path string) []trace.Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	events, err := trace.ReadAll(f)
	require.NoError(t, err)
	return events
}

func TestSessionTraceRotation(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	// Stopping with no active capture is a no-op.
	require.NoError(t, s.stopTrace())

	first := filepath.Join(dir, "first.cbor")
	rec1, err := s.startTrace(first)
	require.NoError(t, err)

	ping := []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}
	s.tap.RecordTx(ping)

	// Rotate: the active capture closes cleanly before the next starts.
	require.NoError(t, s.stopTrace())

	second := filepath.Join(dir, "second.cbor")
	rec2, err := s.startTrace(second)
	require.NoError(t, err)
	assert.NotEqual(t, rec1.Session(), rec2.Session())

	reply := []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC}
	s.tap.RecordRx(reply)
	require.NoError(t, s.stopTrace())

	events := readCapture(t, first)
	require.Len(t, events, 1)
	assert.Equal(t, trace.Tx, events[0].Dir)
	assert.Equal(t, ping, events[0].Bytes)

	events = readCapture(t, second)
	require.Len(t, events, 1)
	assert.Equal(t, trace.Rx, events[0].Dir)
	assert.Equal(t, reply, events[0].Bytes)
}

func TestSessionTapDropsWhenDisarmed(t *testing.T) {
	dir := t.TempDir()
	s := newSession()

	path := filepath.Join(dir, "capture.cbor")
	_, err := s.startTrace(path)
	require.NoError(t, err)
	require.NoError(t, s.stopTrace())

	// A disarmed tap swallows packets instead of writing to a closed file.
	s.tap.RecordTx([]byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB})

	assert.Empty(t, readCapture(t, path))
}
