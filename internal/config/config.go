package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/logging"
)

// FileName is the config file looked up in the working directory.
const FileName = "addonrepo.yaml"

// ServeConfig holds serving-layer settings.
type ServeConfig struct {
	Addr     string `yaml:"addr,omitempty" toml:"addr,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty"`
}

// Config is the in-memory representation of addonrepo.yaml (or .toml).
type Config struct {
	AddonsDir         string      `yaml:"addons_dir" toml:"addons_dir"`
	OutputDir         string      `yaml:"output_dir" toml:"output_dir"`
	ManifestName      string      `yaml:"manifest_name,omitempty" toml:"manifest_name,omitempty"`
	Parallelism       int         `yaml:"parallelism,omitempty" toml:"parallelism,omitempty"`
	FailOnError       bool        `yaml:"fail_on_error" toml:"fail_on_error"`
	Excludes          []string    `yaml:"excludes,omitempty" toml:"excludes,omitempty"`
	DependencyGrammar string      `yaml:"dependency_grammar,omitempty" toml:"dependency_grammar,omitempty"`
	LegacyMD5         bool        `yaml:"legacy_md5" toml:"legacy_md5"`
	LogLevel          string      `yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	Serve             ServeConfig `yaml:"serve" toml:"serve"`
}

// Default returns the configuration written by addonrepo init.
func Default() *Config {
	return &Config{
		AddonsDir:         "addons",
		OutputDir:         "repo",
		ManifestName:      "addon.xml",
		FailOnError:       false,
		DependencyGrammar: "kodi",
		LegacyMD5:         true,
		LogLevel:          "info",
		Excludes: []string{
			".git",
			".svn",
			".DS_Store",
			"Thumbs.db",
			"__pycache__",
			"*.pyc",
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:9001",
		},
	}
}

// Load reads path and applies ADDONREPO_* environment overrides. A missing
// file is not an error when it is the default addonrepo.yaml; defaults are
// used instead.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if path == "" {
		path = FileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	env, err := LoadDotEnv(filepath.Join(filepath.Dir(path), DotEnvFile))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return env[key]
	}); err != nil {
		return nil, err
	}

	cfg.AddonsDir, err = ExpandPath(cfg.AddonsDir)
	if err != nil {
		return nil, err
	}
	cfg.OutputDir, err = ExpandPath(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	cfg.Serve.CacheDir, err = ExpandPath(cfg.Serve.CacheDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return nil
}

// Save marshals cfg and writes it to path, as TOML when path ends in .toml.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// Validate reports settings that would make a build fail late.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AddonsDir) == "" {
		return fmt.Errorf("addons_dir is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if err := checkSeparate(c.AddonsDir, c.OutputDir); err != nil {
		return err
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", c.Parallelism)
	}
	if strings.ContainsAny(c.ManifestName, `/\`) {
		return fmt.Errorf("manifest_name must be a file name, got %q", c.ManifestName)
	}
	if _, err := addon.GrammarByName(c.DependencyGrammar); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// checkSeparate rejects an output directory that is, contains, or lives
// inside the addons directory. Publishing replaces the output directory
// wholesale.
func checkSeparate(addonsDir, outputDir string) error {
	a, err := filepath.Abs(addonsDir)
	if err != nil {
		return fmt.Errorf("cannot resolve addons_dir: %w", err)
	}
	o, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("cannot resolve output_dir: %w", err)
	}
	if a == o || within(a, o) || within(o, a) {
		return fmt.Errorf("output_dir %s must not overlap addons_dir %s", outputDir, addonsDir)
	}
	return nil
}

// within reports whether path lies below dir. Both must be absolute and clean.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Workers is the effective parallelism.
func (c *Config) Workers() int {
	if c.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return c.Parallelism
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}
