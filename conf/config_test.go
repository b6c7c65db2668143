package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestingIni(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minibase.ini")
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.Nil(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := writeTestingIni(t, `
[buffer]
pool_size  = 32
replacer_k = 3

[hash]
directory_max_depth = 5
bucket_max_size     = 16

[storage]
data_dir = /tmp/minibase-test

[log]
level = debug
`)
	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 32, cfg.PoolSize)
	assert.Equal(t, 3, cfg.ReplacerK)
	assert.Equal(t, uint32(5), cfg.DirectoryMaxDepth)
	assert.Equal(t, uint32(16), cfg.BucketMaxSize)
	assert.Equal(t, "/tmp/minibase-test", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	// unset keys keep their defaults
	assert.Equal(t, Default().HeaderMaxDepth, cfg.HeaderMaxDepth)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "zero pool size",
			content: "[buffer]\npool_size = 0\n",
		},
		{
			name:    "replacer k below one",
			content: "[buffer]\nreplacer_k = 0\n",
		},
		{
			name:    "directory depth above limit",
			content: "[hash]\ndirectory_max_depth = 10\n",
		},
		{
			name:    "unknown log level",
			content: "[log]\nlevel = shouting\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTestingIni(t, tt.content))
			assert.NotNil(t, err)
		})
	}
}

func TestOpen(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.PoolSize = 8

	dm, bm, err := cfg.Open()
	require.Nil(t, err)
	_, _, err = bm.NewPage()
	assert.Nil(t, err)
	bm.Close()
	assert.Nil(t, dm.Close())
}

func TestHashConfig(t *testing.T) {
	cfg := Default()
	cfg.BucketMaxSize = 4
	hc := cfg.HashConfig(8, 4)
	assert.Equal(t, 8, hc.KeySize)
	assert.Equal(t, 4, hc.ValueSize)
	assert.Equal(t, uint32(4), hc.BucketMaxSize)
	assert.Equal(t, cfg.DirectoryMaxDepth, hc.DirectoryMaxDepth)
}
