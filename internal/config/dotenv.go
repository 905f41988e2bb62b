package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DotEnvFile is read from the config file's directory.
const DotEnvFile = ".env"

// Environment keys understood by ApplyEnv.
const (
	EnvAddonsDir   = "ADDONREPO_ADDONS_DIR"
	EnvOutputDir   = "ADDONREPO_OUTPUT_DIR"
	EnvParallelism = "ADDONREPO_PARALLELISM"
	EnvFailOnError = "ADDONREPO_FAIL_ON_ERROR"
	EnvLogLevel    = "ADDONREPO_LOG_LEVEL"
	EnvServeAddr   = "ADDONREPO_SERVE_ADDR"
	EnvCacheDir    = "ADDONREPO_CACHE_DIR"
)

// LoadDotEnv reads a dotenv file and returns key/value pairs. A missing file
// yields an empty map.
//
// Parsing rules:
// - Lines starting with '#' are ignored.
// - Empty lines are ignored.
// - Lines must be of form KEY=VALUE.
// - Whitespace around KEY is trimmed.
// - VALUE is taken as-is (no quote parsing).
func LoadDotEnv(p string) (map[string]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := line[i+1:]
		if k == "" {
			continue
		}
		out[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

// ApplyEnv overrides fields from lookup, which returns "" for unset keys.
func (c *Config) ApplyEnv(lookup func(string) string) error {
	if v := lookup(EnvAddonsDir); v != "" {
		c.AddonsDir = v
	}
	if v := lookup(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := lookup(EnvParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvParallelism, err)
		}
		c.Parallelism = n
	}
	if v := lookup(EnvFailOnError); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFailOnError, err)
		}
		c.FailOnError = b
	}
	if v := lookup(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := lookup(EnvServeAddr); v != "" {
		c.Serve.Addr = v
	}
	if v := lookup(EnvCacheDir); v != "" {
		c.Serve.CacheDir = v
	}
	return nil
}
