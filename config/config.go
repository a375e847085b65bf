// Package config loads securevault settings. Values are layered: built-in
// defaults, then a YAML file, then SECUREVAULT_* environment variables,
// then command line flags. Each attribute remembers which layer set it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fahmaliyi/securevault/logging"
	"github.com/fahmaliyi/securevault/vault"
)

const (
	EnvPrefix      = "SECUREVAULT"
	ConfigFileName = "config.yml"

	BackendFile = "file"
	BackendDir  = "dir"
	BackendBolt = "bolt"

	SourceDefault     = "default"
	SourceDerived     = "derived"
	SourceFile        = "file"
	SourceEnvironment = "environment"
	SourceFlag        = "flag"
)

type Config struct {
	DataDir          string        `yaml:"data_dir" json:"data_dir"`
	Backend          string        `yaml:"backend" json:"backend"`
	VaultFile        string        `yaml:"vault_file" json:"vault_file"`
	ExportDir        string        `yaml:"export_dir" json:"export_dir"`
	KDF              KDF           `yaml:"kdf" json:"kdf"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" json:"autosave_interval"`
	FlushTimeout     time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
	LogLevel         string        `yaml:"log_level" json:"log_level"`
	LogFormat        string        `yaml:"log_format" json:"log_format"`

	sources        map[string]string
	configFilePath string
}

type KDF struct {
	Method       string `yaml:"method" json:"method"`
	Iterations   int    `yaml:"iterations" json:"iterations"`
	ArgonTime    uint32 `yaml:"argon_time" json:"argon_time"`
	ArgonMemory  uint32 `yaml:"argon_memory" json:"argon_memory"`
	ArgonThreads uint8  `yaml:"argon_threads" json:"argon_threads"`
}

// overlay is one layer of settings; nil means "not set by this layer".
// The same struct is filled from YAML and from the environment.
type overlay struct {
	DataDir          *string        `yaml:"data_dir" envconfig:"HOME"`
	Backend          *string        `yaml:"backend" envconfig:"BACKEND"`
	VaultFile        *string        `yaml:"vault_file" envconfig:"VAULT_FILE"`
	ExportDir        *string        `yaml:"export_dir" envconfig:"EXPORT_DIR"`
	KDF              kdfOverlay     `yaml:"kdf" envconfig:"KDF"`
	AutosaveInterval *time.Duration `yaml:"autosave_interval" envconfig:"AUTOSAVE_INTERVAL"`
	FlushTimeout     *time.Duration `yaml:"flush_timeout" envconfig:"FLUSH_TIMEOUT"`
	LogLevel         *string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat        *string        `yaml:"log_format" envconfig:"LOG_FORMAT"`

	ConfigFile *string `yaml:"-" envconfig:"CONFIG"`
}

type kdfOverlay struct {
	Method       *string `yaml:"method" envconfig:"METHOD"`
	Iterations   *int    `yaml:"iterations" envconfig:"ITERATIONS"`
	ArgonTime    *uint32 `yaml:"argon_time" envconfig:"ARGON_TIME"`
	ArgonMemory  *uint32 `yaml:"argon_memory" envconfig:"ARGON_MEMORY"`
	ArgonThreads *uint8  `yaml:"argon_threads" envconfig:"ARGON_THREADS"`
}

// Flags are values given on the command line; empty strings are unset.
type Flags struct {
	ConfigFile string
	DataDir    string
	LogLevel   string
}

func attributeNames() []string {
	return []string{
		"data_dir", "backend", "vault_file", "export_dir",
		"kdf.method", "kdf.iterations", "kdf.argon_time", "kdf.argon_memory", "kdf.argon_threads",
		"autosave_interval", "flush_timeout", "log_level", "log_format",
	}
}

// Default returns the built-in settings rooted at ~/.securevault.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	kdf := vault.DefaultKDFParams()
	c := &Config{
		DataDir: filepath.Join(home, ".securevault"),
		Backend: BackendFile,
		KDF: KDF{
			Method:       kdf.Method,
			Iterations:   kdf.Iterations,
			ArgonTime:    kdf.Time,
			ArgonMemory:  kdf.Memory,
			ArgonThreads: kdf.Threads,
		},
		AutosaveInterval: 2 * time.Minute,
		FlushTimeout:     vault.DefaultFlushTimeout,
		LogLevel:         "warn",
		LogFormat:        logging.FormatConsole,
		sources:          map[string]string{},
	}
	for _, name := range attributeNames() {
		c.sources[name] = SourceDefault
	}
	return c
}

// Load builds the configuration. The file is flags.ConfigFile, else
// $SECUREVAULT_CONFIG, else config.yml in the data directory; a missing
// file is not an error.
func Load(flags Flags) (*Config, error) {
	c := Default()

	var env overlay
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	dataDir := c.DataDir
	if env.DataDir != nil {
		dataDir = *env.DataDir
	}
	if flags.DataDir != "" {
		dataDir = flags.DataDir
	}
	c.configFilePath = filepath.Join(dataDir, ConfigFileName)
	if env.ConfigFile != nil && *env.ConfigFile != "" {
		c.configFilePath = *env.ConfigFile
	}
	if flags.ConfigFile != "" {
		c.configFilePath = flags.ConfigFile
	}

	data, err := os.ReadFile(c.configFilePath)
	switch {
	case err == nil:
		var file overlay
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", c.configFilePath, err)
		}
		c.apply(&file, SourceFile)
	case errors.Is(err, fs.ErrNotExist) && flags.ConfigFile == "":
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c.apply(&env, SourceEnvironment)
	c.apply(&overlay{
		DataDir:  nonEmpty(flags.DataDir),
		LogLevel: nonEmpty(flags.LogLevel),
	}, SourceFlag)

	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func set[T any](c *Config, name, source string, dst *T, v *T) {
	if v == nil {
		return
	}
	*dst = *v
	c.sources[name] = source
}

func (c *Config) apply(o *overlay, source string) {
	set(c, "data_dir", source, &c.DataDir, o.DataDir)
	set(c, "backend", source, &c.Backend, o.Backend)
	set(c, "vault_file", source, &c.VaultFile, o.VaultFile)
	set(c, "export_dir", source, &c.ExportDir, o.ExportDir)
	set(c, "kdf.method", source, &c.KDF.Method, o.KDF.Method)
	set(c, "kdf.iterations", source, &c.KDF.Iterations, o.KDF.Iterations)
	set(c, "kdf.argon_time", source, &c.KDF.ArgonTime, o.KDF.ArgonTime)
	set(c, "kdf.argon_memory", source, &c.KDF.ArgonMemory, o.KDF.ArgonMemory)
	set(c, "kdf.argon_threads", source, &c.KDF.ArgonThreads, o.KDF.ArgonThreads)
	set(c, "autosave_interval", source, &c.AutosaveInterval, o.AutosaveInterval)
	set(c, "flush_timeout", source, &c.FlushTimeout, o.FlushTimeout)
	set(c, "log_level", source, &c.LogLevel, o.LogLevel)
	set(c, "log_format", source, &c.LogFormat, o.LogFormat)
}

// derive fills paths that default relative to the data directory.
func (c *Config) derive() {
	c.DataDir = expandHome(c.DataDir)
	if c.VaultFile == "" {
		c.VaultFile = filepath.Join(c.DataDir, "default"+vault.FileExtension)
		c.sources["vault_file"] = SourceDerived
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
		c.sources["export_dir"] = SourceDerived
	}
	c.VaultFile = expandHome(c.VaultFile)
	c.ExportDir = expandHome(c.ExportDir)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	switch c.Backend {
	case BackendFile, BackendDir, BackendBolt:
	default:
		return fmt.Errorf("invalid backend: %q (want file, dir or bolt)", c.Backend)
	}
	switch c.KDF.Method {
	case vault.MethodPBKDF2:
		if c.KDF.Iterations < vault.MinIterations {
			return fmt.Errorf("kdf.iterations must be at least %d", vault.MinIterations)
		}
	case vault.MethodArgon2id:
		if c.KDF.ArgonTime == 0 || c.KDF.ArgonThreads == 0 || c.KDF.ArgonMemory < 8*uint32(c.KDF.ArgonThreads) {
			return errors.New("kdf argon2id parameters out of range")
		}
	default:
		return fmt.Errorf("invalid kdf.method: %q", c.KDF.Method)
	}
	if c.AutosaveInterval < 0 {
		return errors.New("autosave_interval must not be negative")
	}
	if c.FlushTimeout <= 0 {
		return errors.New("flush_timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	switch c.LogFormat {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}
	return nil
}

// KDFParams is the derivation used for new keys.
func (c *Config) KDFParams() vault.KDFParams {
	return vault.KDFParams{
		Method:     c.KDF.Method,
		Iterations: c.KDF.Iterations,
		Time:       c.KDF.ArgonTime,
		Memory:     c.KDF.ArgonMemory,
		Threads:    c.KDF.ArgonThreads,
	}
}

// EnsureDirs creates the data and export directories owner-only.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.ExportDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns which layer set an attribute.
func (c *Config) Source(name string) string {
	if s, ok := c.sources[name]; ok {
		return s
	}
	return SourceDefault
}

type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func (c *Config) Attributes() []Attribute {
	values := map[string]string{
		"data_dir":          c.DataDir,
		"backend":           c.Backend,
		"vault_file":        c.VaultFile,
		"export_dir":        c.ExportDir,
		"kdf.method":        c.KDF.Method,
		"kdf.iterations":    strconv.Itoa(c.KDF.Iterations),
		"kdf.argon_time":    strconv.FormatUint(uint64(c.KDF.ArgonTime), 10),
		"kdf.argon_memory":  strconv.FormatUint(uint64(c.KDF.ArgonMemory), 10),
		"kdf.argon_threads": strconv.FormatUint(uint64(c.KDF.ArgonThreads), 10),
		"autosave_interval": c.AutosaveInterval.String(),
		"flush_timeout":     c.FlushTimeout.String(),
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
	}
	attrs := make([]Attribute, 0, len(values))
	for _, name := range attributeNames() {
		attrs = append(attrs, Attribute{Name: name, Value: values[name], Source: c.Source(name)})
	}
	return attrs
}

func (c *Config) FormatText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Config file: %s\n\n", c.configFilePath)
	fmt.Fprintf(&sb, "%-20s %-50s %s\n", "NAME", "VALUE", "SOURCE")
	fmt.Fprintf(&sb, "%-20s %-50s %s\n", "----", "-----", "------")
	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(&sb, "%-20s %-50s %s\n", attr.Name, value, attr.Source)
	}
	return sb.String()
}

func (c *Config) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(map[string]any{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Log writes one line describing the loaded configuration.
func (c *Config) Log(l zerolog.Logger) {
	l.Info().
		Str("config_file", c.configFilePath).
		Str("data_dir", c.DataDir).
		Str("backend", c.Backend).
		Str("kdf", c.KDF.Method).
		Dur("autosave_interval", c.AutosaveInterval).
		Str("log_level", c.LogLevel).
		Msg("configuration loaded")
}
