package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer

	log, closer, err := New(Options{Level: "warn", Out: &buf})
	require.NoError(t, err)
	defer closer()

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.WithField("machine", "web-1").Warn("skipping machine")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "skipping machine")
	assert.Contains(t, out, "machine=web-1")
}

func TestNewInvalidLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLogFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	log, closer, err := New(Options{Dir: dir, Out: &buf})
	require.NoError(t, err)

	log.Info("scan started")
	require.NoError(t, closer())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "vulnerability_scan_"))

	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan started")
	assert.Contains(t, buf.String(), "scan started")
}
