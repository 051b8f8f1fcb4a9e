package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config locates the external programs and local state the tools rely on.
type Config struct {
	Root    string       `yaml:"root"`
	Psrcat  PsrcatConfig `yaml:"psrcat"`
	NE2001  ModelConfig  `yaml:"ne2001"`
	YMW16   ModelConfig  `yaml:"ymw16"`
	CacheDB string       `yaml:"cache_db"`
	// CacheMaxAge is how long a stored catalog row is served before psrcat
	// is asked again. Zero keeps rows until they are refreshed explicitly.
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
	Server      ServerConfig  `yaml:"server"`
}

// DefaultCacheMaxAge is the stored-row lifetime used when none is configured.
const DefaultCacheMaxAge = 7 * 24 * time.Hour

// PsrcatConfig points at the psrcat binary and its database file.
type PsrcatConfig struct {
	Binary string `yaml:"binary"`
	DB     string `yaml:"db"`
}

// ModelConfig points at an electron-density model binary and its input data.
type ModelConfig struct {
	Binary string `yaml:"binary"`
	Input  string `yaml:"input"`
}

// ServerConfig holds listen addresses for psrinfo-server.
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultRoot is $PSRINFO_ROOT, or ~/.psrinfo when unset.
func DefaultRoot() string {
	if root := os.Getenv("PSRINFO_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".psrinfo"
	}
	return filepath.Join(home, ".psrinfo")
}

// Default lays the external tools out beneath root.
func Default(root string) Config {
	return Config{
		Root: root,
		Psrcat: PsrcatConfig{
			Binary: filepath.Join(root, "psrcat", "psrcat"),
			DB:     filepath.Join(root, "psrcat", "psrcat.db"),
		},
		NE2001: ModelConfig{
			Binary: filepath.Join(root, "NE2001", "bin.NE2001", "NE2001"),
			Input:  filepath.Join(root, "NE2001", "input.NE2001"),
		},
		YMW16: ModelConfig{
			Binary: filepath.Join(root, "ymw16", "ymw16"),
			Input:  filepath.Join(root, "ymw16") + string(filepath.Separator),
		},
		CacheDB:     filepath.Join(root, "catalog.sqlite"),
		CacheMaxAge: DefaultCacheMaxAge,
		Server: ServerConfig{
			GRPCAddr:    ":50061",
			MetricsAddr: ":9100",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// path is non-empty), then environment overrides. A missing file is an error
// only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default(DefaultRoot())
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML onto cfg. When the document changes root but leaves the
// tool paths unset, those paths are re-derived from the new root.
func Parse(data []byte, cfg *Config) error {
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	if overlay.Root != "" && overlay.Root != cfg.Root {
		*cfg = Default(overlay.Root)
	}
	return yaml.Unmarshal(data, cfg)
}

// ApplyEnv overrides fields from PSRINFO_* variables. It fails only on a
// malformed PSRINFO_CACHE_MAX_AGE.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	override := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Psrcat.Binary, "PSRINFO_PSRCAT_BINARY")
	override(&c.Psrcat.DB, "PSRINFO_PSRCAT_DB")
	override(&c.NE2001.Binary, "PSRINFO_NE2001_BINARY")
	override(&c.NE2001.Input, "PSRINFO_NE2001_INPUT")
	override(&c.YMW16.Binary, "PSRINFO_YMW16_BINARY")
	override(&c.YMW16.Input, "PSRINFO_YMW16_INPUT")
	override(&c.CacheDB, "PSRINFO_CACHE_DB")
	override(&c.Server.GRPCAddr, "PSRINFO_GRPC_ADDR")
	override(&c.Server.MetricsAddr, "PSRINFO_METRICS_ADDR")
	if v := getenv("PSRINFO_CACHE_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PSRINFO_CACHE_MAX_AGE: %w", err)
		}
		c.CacheMaxAge = d
	}
	return nil
}

// Validate rejects configurations with no way to reach psrcat.
func (c Config) Validate() error {
	var errs []error
	if c.Psrcat.Binary == "" {
		errs = append(errs, errors.New("psrcat.binary is empty"))
	}
	if c.Psrcat.DB == "" {
		errs = append(errs, errors.New("psrcat.db is empty"))
	}
	if c.CacheMaxAge < 0 {
		errs = append(errs, fmt.Errorf("cache_max_age %v is negative", c.CacheMaxAge))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
