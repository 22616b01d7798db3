// internal/config/config.go
//
// This package assembles the runtime configuration for a premerge run from
// the CI environment, an optional .env file and an optional
// .ci/premerge.yaml inside the checkout.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/premerge/internal/pipeline"
	"github.com/kingrea/premerge/internal/registry"
)

const (
	// DefaultConfigPath is where the optional settings file lives inside a
	// checkout.
	DefaultConfigPath = ".ci/premerge.yaml"

	DefaultBaseBranch = "main"
	DefaultGitTimeout = 2 * time.Minute
	DefaultLogLevel   = "info"
)

// Environment variables read by Load.
const (
	EnvCommit        = "BUILDKITE_COMMIT"
	EnvBranch        = "BUILDKITE_BRANCH"
	EnvBaseBranch    = "BUILDKITE_PULL_REQUEST_BASE_BRANCH"
	EnvModifiedFiles = "MODIFIED_FILES"
	EnvLinuxAgents   = "LINUX_AGENTS"
	EnvWindowsAgents = "WINDOWS_AGENTS"
	EnvLogLevel      = "PREMERGE_LOG_LEVEL"
)

// ErrInvalidAgents is returned when an agent selector cannot be parsed.
var ErrInvalidAgents = errors.New("config: invalid agent selector")

// EnvLookup resolves an environment variable.
type EnvLookup func(key string) (string, bool)

// PlatformOverride adjusts one platform step.
type PlatformOverride struct {
	Agents         map[string]string `yaml:"agents,omitempty"`
	TimeoutMinutes int               `yaml:"timeout_in_minutes,omitempty"`
	Disabled       bool              `yaml:"disabled,omitempty"`
}

// FileConfig models .ci/premerge.yaml.
type FileConfig struct {
	Version    int                                    `yaml:"version"`
	Registry   string                                 `yaml:"registry,omitempty"`
	BaseBranch string                                 `yaml:"base_branch,omitempty"`
	FetchBase  bool                                   `yaml:"fetch_base,omitempty"`
	GitTimeout time.Duration                          `yaml:"git_timeout,omitempty"`
	LogLevel   string                                 `yaml:"log_level,omitempty"`
	Platforms  map[registry.Platform]PlatformOverride `yaml:"platforms,omitempty"`
}

// Options controls where Load looks for its inputs.
type Options struct {
	// ConfigPath overrides DefaultConfigPath. An explicit path must exist.
	ConfigPath string
	// EnvFile names a dotenv file whose values fill unset variables.
	EnvFile string
	// Lookup defaults to os.LookupEnv.
	Lookup EnvLookup
}

// Config holds everything a run needs besides the diff itself.
type Config struct {
	WorkDir    string
	ConfigPath string
	File       FileConfig

	Commit     string
	Branch     string
	BaseBranch string

	// ModifiedFiles is set when MODIFIED_FILES was provided; otherwise the
	// diff must be computed from git.
	ModifiedFiles    []string
	HasModifiedFiles bool

	LogLevel string
	Agents   map[registry.Platform]map[string]string
}

// Load builds a Config rooted at workDir.
func Load(workDir string, opts Options) (*Config, error) {
	if strings.TrimSpace(workDir) == "" {
		return nil, fmt.Errorf("config: work dir is required")
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(resolvePath(workDir, opts.EnvFile))
		if err != nil {
			return nil, fmt.Errorf("config: read env file %s: %w", opts.EnvFile, err)
		}
		lookup = withFallback(lookup, values)
	}

	cfg := &Config{
		WorkDir:    filepath.Clean(workDir),
		ConfigPath: resolvePath(workDir, DefaultConfigPath),
		File:       defaultFileConfig(),
	}
	if opts.ConfigPath != "" {
		cfg.ConfigPath = resolvePath(workDir, opts.ConfigPath)
	}
	if err := cfg.loadFileConfig(opts.ConfigPath != ""); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFileConfig(required bool) error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", c.ConfigPath, err)
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.ConfigPath, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.WorkDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", c.ConfigPath, err)
	}
	c.File = parsed
	return nil
}

func (c *Config) applyEnv(lookup EnvLookup) error {
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}
	c.Commit = get(EnvCommit)
	c.Branch = get(EnvBranch)
	c.BaseBranch = firstNonEmpty(get(EnvBaseBranch), c.File.BaseBranch, DefaultBaseBranch)
	c.LogLevel = strings.ToLower(firstNonEmpty(get(EnvLogLevel), c.File.LogLevel, DefaultLogLevel))

	if raw, ok := lookup(EnvModifiedFiles); ok && strings.TrimSpace(raw) != "" {
		c.HasModifiedFiles = true
		for _, line := range strings.Split(raw, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				c.ModifiedFiles = append(c.ModifiedFiles, trimmed)
			}
		}
	}

	c.Agents = map[registry.Platform]map[string]string{}
	for platform, override := range c.File.Platforms {
		if len(override.Agents) > 0 {
			c.Agents[platform] = override.Agents
		}
	}
	envAgents := map[registry.Platform]string{
		registry.PlatformLinux:   EnvLinuxAgents,
		registry.PlatformWindows: EnvWindowsAgents,
	}
	for _, platform := range registry.Platforms() {
		raw := get(envAgents[platform])
		if raw == "" {
			continue
		}
		agents, err := ParseAgents(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", envAgents[platform], err)
		}
		c.Agents[platform] = agents
	}
	return nil
}

// ParseAgents decodes an agent selector such as {"queue": "linux"}.
func ParseAgents(raw string) (map[string]string, error) {
	var agents map[string]string
	if err := yaml.Unmarshal([]byte(raw), &agents); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAgents, err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w: %q selects no agents", ErrInvalidAgents, raw)
	}
	return agents, nil
}

// GitTimeout bounds each git invocation.
func (c *Config) GitTimeout() time.Duration {
	if c.File.GitTimeout > 0 {
		return c.File.GitTimeout
	}
	return DefaultGitTimeout
}

// RegistryPath is the registry file in use, or "" for the built-in one.
func (c *Config) RegistryPath() string {
	if c.File.Registry != "" {
		return c.File.Registry
	}
	candidate := filepath.Join(c.WorkDir, registry.DefaultPath)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// Registry returns the configured registry, the checkout's override at
// registry.DefaultPath, or the built-in one.
func (c *Config) Registry() (registry.Definition, error) {
	path := c.RegistryPath()
	if path == "" {
		return registry.Default(), nil
	}
	def, err := registry.LoadDefinitionFile(path)
	if err != nil {
		return registry.Definition{}, fmt.Errorf("config: %w", err)
	}
	return def, nil
}

// ApplyPlatforms returns specs with agents and timeouts overridden and
// disabled platforms removed.
func (c *Config) ApplyPlatforms(specs []pipeline.PlatformSpec) []pipeline.PlatformSpec {
	out := make([]pipeline.PlatformSpec, 0, len(specs))
	for _, spec := range specs {
		override := c.File.Platforms[spec.Platform]
		if override.Disabled {
			continue
		}
		if agents, ok := c.Agents[spec.Platform]; ok {
			spec.Agents = agents
		}
		if override.TimeoutMinutes > 0 {
			spec.TimeoutMinutes = override.TimeoutMinutes
		}
		out = append(out, spec)
	}
	return out
}

// EnabledPlatforms lists the platforms not disabled by the settings file.
func (c *Config) EnabledPlatforms() []registry.Platform {
	var out []registry.Platform
	for _, platform := range registry.Platforms() {
		if !c.File.Platforms[platform].Disabled {
			out = append(out, platform)
		}
	}
	return out
}

func defaultFileConfig() FileConfig {
	return FileConfig{Version: 1}
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
}

func (fc *FileConfig) normalize(base string) {
	fc.Registry = resolvePath(base, fc.Registry)
	fc.BaseBranch = strings.TrimSpace(fc.BaseBranch)
	fc.LogLevel = strings.ToLower(strings.TrimSpace(fc.LogLevel))
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if fc.GitTimeout < 0 {
		return fmt.Errorf("git_timeout must be >= 0")
	}
	switch fc.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	disabled := 0
	for platform, override := range fc.Platforms {
		known := false
		for _, p := range registry.Platforms() {
			if p == platform {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("platforms: unknown platform %q", platform)
		}
		if override.TimeoutMinutes < 0 {
			return fmt.Errorf("platforms[%s]: timeout_in_minutes must be >= 0", platform)
		}
		if override.Disabled {
			disabled++
		}
	}
	if disabled == len(registry.Platforms()) {
		return fmt.Errorf("platforms: at least one platform must stay enabled")
	}
	return nil
}

func withFallback(primary EnvLookup, fallback map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := fallback[key]
		return value, ok
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
