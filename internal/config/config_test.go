package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	cfg := Default("/opt/psr")
	assert.Equal(t, filepath.Join("/opt/psr", "psrcat", "psrcat"), cfg.Psrcat.Binary)
	assert.Equal(t, filepath.Join("/opt/psr", "psrcat", "psrcat.db"), cfg.Psrcat.DB)
	assert.Equal(t, filepath.Join("/opt/psr", "NE2001", "bin.NE2001", "NE2001"), cfg.NE2001.Binary)
	assert.Equal(t, filepath.Join("/opt/psr", "NE2001", "input.NE2001"), cfg.NE2001.Input)
	assert.Equal(t, "/opt/psr/ymw16/", cfg.YMW16.Input)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Setenv("PSRINFO_ROOT", "/unused")
	t.Setenv("PSRINFO_YMW16_BINARY", "/usr/local/bin/ymw16")

	dir := t.TempDir()
	path := filepath.Join(dir, "psrinfo.yaml")
	doc := `
root: /data/pulsar
psrcat:
  db: /data/custom.db
cache_max_age: 36h
server:
  grpc_addr: 127.0.0.1:7000
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/pulsar", cfg.Root)
	assert.Equal(t, filepath.Join("/data/pulsar", "psrcat", "psrcat"), cfg.Psrcat.Binary, "binary re-derived from root")
	assert.Equal(t, "/data/custom.db", cfg.Psrcat.DB)
	assert.Equal(t, "/usr/local/bin/ymw16", cfg.YMW16.Binary)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.GRPCAddr)
	assert.Equal(t, ":9100", cfg.Server.MetricsAddr)
	assert.Equal(t, 36*time.Hour, cfg.CacheMaxAge)
}

func TestCacheMaxAge(t *testing.T) {
	t.Setenv("PSRINFO_ROOT", "/srv/psrinfo")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheMaxAge, cfg.CacheMaxAge)

	t.Setenv("PSRINFO_CACHE_MAX_AGE", "0")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.CacheMaxAge)

	t.Setenv("PSRINFO_CACHE_MAX_AGE", "90m")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.CacheMaxAge)

	t.Setenv("PSRINFO_CACHE_MAX_AGE", "a week")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PSRINFO_CACHE_MAX_AGE")

	t.Setenv("PSRINFO_CACHE_MAX_AGE", "-1h")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache_max_age")
}

func TestLoadWithoutFileUsesRootEnv(t *testing.T) {
	t.Setenv("PSRINFO_ROOT", "/srv/psrinfo")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/psrinfo", "catalog.sqlite"), cfg.CacheDB)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("psrcat: [unterminated"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "psrcat.binary")
	assert.Contains(t, err.Error(), "psrcat.db")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default("/x")
	data, err := Marshal(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, Parse(data, &back))
	assert.Equal(t, cfg, back)
}
