package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termscon/backend/internal/corpus"
)

func TestLoadIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "passages.jsonl")
	out := filepath.Join(dir, "corpus.db")
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(input, []byte(
		`{"corpus":"civil","citation":"§ 1752","text":"Změna obchodních podmínek.","embedding":[1,0,0]}
{"corpus":"criminal","citation":"§ 209","text":"Podvod.","embedding":[0,1,0]}
`), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
embedding:
  provider: none
  dimension: 3
logging:
  level: error
`), 0o644))

	root := newRootCmd()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"load", "--config", cfgPath, "--input", input, "--target", "sqlite", "--out", out})
	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "imported 2 passages")

	store, err := corpus.OpenSQLiteStore(out)
	require.NoError(t, err)
	defer store.Close()

	ix, err := corpus.Load(t.Context(), store, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Counts()["civil"])
	assert.Equal(t, 1, ix.Counts()["criminal"])
}

func TestLoadRejectsUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "passages.jsonl")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(input, []byte(`{"corpus":"civil","citation":"§ 1","text":"a","embedding":[1,0,0]}`), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("embedding:\n  provider: none\n  dimension: 3\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"load", "--config", cfgPath, "--input", input, "--target", "parquet"})
	assert.Error(t, root.Execute())
}
