package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogDir = dir
	cfg.ConsoleEnabled = false

	log, err := NewLogger(cfg)
	require.NoError(t, err)

	log.Info("hello", String("key", "value"))
	require.NoError(t, log.Sync())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	log := Nop()
	log.Info("anything", Int("n", 1))
	log.Warn("anything", Error(nil))
}

func TestWithRunIDTagsLines(t *testing.T) {
	log := Nop().WithRunID(NewRunID())
	require.NotNil(t, log)
}

func TestLevelFromStringDefaultsToInfo(t *testing.T) {
	require.Equal(t, "info", LevelFromString("not-a-level").String())
	require.Equal(t, "debug", LevelFromString("debug").String())
}
