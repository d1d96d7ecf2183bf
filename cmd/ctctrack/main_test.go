package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/LdDl/ctc-tracker-go/ctcio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-format", "text"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeSequence writes a dividing cell as mask001.tif and mask002.tif
func writeSequence(t *testing.T, dir string) {
	t.Helper()
	mother, err := celltrack.NewLabelImageFromRows([][]int32{
		{0, 0, 0, 0, 0, 0},
		{0, 5, 5, 5, 5, 0},
		{0, 5, 5, 5, 5, 0},
		{0, 5, 5, 5, 5, 0},
		{0, 5, 5, 5, 5, 0},
		{0, 0, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	daughters, err := celltrack.NewLabelImageFromRows([][]int32{
		{0, 0, 0, 0, 0, 0},
		{0, 1, 1, 2, 2, 0},
		{0, 1, 1, 2, 2, 0},
		{0, 1, 1, 2, 2, 0},
		{0, 1, 1, 2, 2, 0},
		{0, 0, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	require.NoError(t, ctcio.WriteMask(filepath.Join(dir, "mask001.tif"), mother))
	require.NoError(t, ctcio.WriteMask(filepath.Join(dir, "mask002.tif"), daughters))
}

func TestTrackCommand(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "01_RES")
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	writeSequence(t, input)

	out, _, err := runCLI(t, "track", "--input", input, "--output", output, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Divisions")

	rows, err := ctcio.ReadLineageFile(filepath.Join(output, ctcio.LineageFileName))
	require.NoError(t, err)
	assert.Equal(t, []celltrack.LineageRow{
		{TrackID: 1, Start: 1, End: 1, Parent: 0},
		{TrackID: 2, Start: 2, End: 2, Parent: 1},
		{TrackID: 3, Start: 2, End: 2, Parent: 1},
	}, rows)
	for _, name := range []string{"mask001.tif", "mask002.tif"} {
		_, err := os.Stat(filepath.Join(output, name))
		assert.NoError(t, err, name)
	}

	out, _, err = runCLI(t, "lineage", filepath.Join(output, ctcio.LineageFileName))
	require.NoError(t, err)
	assert.Contains(t, out, "Parent")

	out, _, err = runCLI(t, "runs", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracks")
}

func TestTrackCommandInvalidInput(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "01_RES")
	writeSequence(t, input)
	broken := celltrack.NewLabelImage(3, 3)
	require.NoError(t, ctcio.WriteMask(filepath.Join(input, "mask003.tif"), broken))

	_, _, err := runCLI(t, "track", "--input", input, "--output", output)
	require.Error(t, err)
	assert.ErrorIs(t, err, celltrack.ErrDimensionMismatch)
	_, statErr := os.Stat(filepath.Join(output, ctcio.LineageFileName))
	assert.True(t, os.IsNotExist(statErr), "no lineage may be written for a failed run")
}

func TestConfigDefaultCommand(t *testing.T) {
	out, _, err := runCLI(t, "config", "default")
	require.NoError(t, err)
	assert.Contains(t, out, "[graph]")
	assert.Contains(t, out, "min_overlap_fraction")

	path := filepath.Join(t.TempDir(), "ctctrack.toml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))
	out, _, err = runCLI(t, "config", "validate", path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "Configuration valid"))
}

func TestLineageCommandRequiresSource(t *testing.T) {
	_, _, err := runCLI(t, "lineage")
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	logger.Debug("hello", "frame", 3)
	assert.Contains(t, buf.String(), `"frame":3`)

	buf.Reset()
	// Buffer is not a terminal, auto falls back to JSON
	logger, err = newLogger(&buf, "info", "auto")
	require.NoError(t, err)
	logger.Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	_, err = newLogger(&buf, "info", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `log format: unsupported value "xml"`)
	_, err = newLogger(&buf, "loud", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `log level: unsupported value "loud"`)
}
