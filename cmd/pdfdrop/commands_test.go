package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestExtractCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a pdf"), 0o644))

	_, err := run(t, "extract", garbage)
	assert.ErrorIs(t, err, extract.ErrDecode)

	_, err = run(t, "extract", filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, extract.ErrRead)

	_, err = run(t, "extract", "--format", "xml", garbage)
	assert.ErrorContains(t, err, "unknown format")

	_, err = run(t, "extract")
	assert.Error(t, err)
}

func TestExtractCmd_PartialPrintsFailures(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a pdf"), 0o644))

	out, err := run(t, "extract", "--partial", garbage)
	require.NoError(t, err)
	assert.Contains(t, out, `"fileName": "garbage.pdf"`)
	assert.Contains(t, out, `"error":`)

	out, err = run(t, "extract", "--partial", "-f", "csv", garbage)
	require.NoError(t, err)
	assert.Contains(t, out, "file,page,index,text,x,y,width,height")
	assert.Contains(t, out, "garbage.pdf")
}

func TestRootCmd_Config(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("no_such_field: 1\n"), 0o644))

	_, err := run(t, "--config", bad, "extract", "x.pdf")
	assert.Error(t, err)

	_, err = run(t, "--log-format", "xml", "extract", "x.pdf")
	assert.ErrorContains(t, err, "invalid configuration")
}
