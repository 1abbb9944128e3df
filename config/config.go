// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and validates the ledgerfs daemon configuration.
//
// The on-disk format is a flat key = value file with # comments. Unknown keys
// are ignored so that newer config files can be read by older binaries.
// Environment variables prefixed with LEDGERFS_ override file values.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "ledgerfs"

// Large-content policies.
const (
	PolicyExternalize = "externalize"
	PolicyReject      = "reject"
)

// Ledger backends.
const (
	LedgerBSV    = "bsv"
	LedgerMemory = "memory"
)

// Index backends.
const (
	IndexBolt     = "bolt"
	IndexPostgres = "postgres"
	IndexMemory   = "memory"
)

// Config holds all daemon settings.
type Config struct {
	DataDir    string `envconfig:"datadir"`
	ListenAddr string `envconfig:"listen"`
	Network    string `envconfig:"network"`
	LogLevel   string `envconfig:"loglevel"`
	LogFile    string `envconfig:"logfile"`

	// Ledger is the ledger backend: "bsv" or "memory".
	Ledger  string `envconfig:"ledger"`
	RPCURL  string `envconfig:"rpc_url"`
	RPCUser string `envconfig:"rpc_user"`
	RPCPass string `envconfig:"rpc_pass"`
	// RPCRetries is how often a call that could not reach the node is retried.
	RPCRetries int `envconfig:"rpc_retries"`

	// OperatorKey is the custody reference of the operator signing key.
	OperatorKey string `envconfig:"operator_key"`
	KeyDir      string `envconfig:"keydir"`
	// OperatorPassphrase unlocks the operator key file. Never written by SaveConfig.
	OperatorPassphrase string `envconfig:"operator_passphrase"`

	MinConfirmations int           `envconfig:"min_confirmations"`
	PollAttempts     int           `envconfig:"poll_attempts"`
	PollMin          time.Duration `envconfig:"poll_min"`
	PollMax          time.Duration `envconfig:"poll_max"`

	MaxRecordSize int    `envconfig:"max_record_size"`
	ContentPolicy string `envconfig:"content_policy"`
	BlobDir       string `envconfig:"blobdir"`

	Index       string `envconfig:"index"`
	PostgresDSN string `envconfig:"postgres_dsn"`

	JWTSecret   string `envconfig:"jwt_secret"`
	UniqueNames bool   `envconfig:"unique_names"`
}

// DefaultDataDir returns ~/.ledgerfs, or ./.ledgerfs when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".ledgerfs"
	}
	return filepath.Join(home, ".ledgerfs")
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:          DefaultDataDir(),
		ListenAddr:       ":8080",
		Network:          "mainnet",
		LogLevel:         "info",
		LogFile:          "",
		Ledger:           LedgerBSV,
		RPCRetries:       2,
		OperatorKey:      "operator",
		MinConfirmations: 0,
		PollAttempts:     10,
		PollMin:          500 * time.Millisecond,
		PollMax:          8 * time.Second,
		MaxRecordSize:    1024,
		ContentPolicy:    PolicyExternalize,
		Index:            IndexBolt,
	}
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// KeyDirOrDefault returns KeyDir, falling back to {DataDir}/keys.
func (c Config) KeyDirOrDefault() string {
	if c.KeyDir != "" {
		return c.KeyDir
	}
	return filepath.Join(c.DataDir, "keys")
}

// BlobDirOrDefault returns BlobDir, falling back to {DataDir}/blobs.
func (c Config) BlobDirOrDefault() string {
	if c.BlobDir != "" {
		return c.BlobDir
	}
	return filepath.Join(c.DataDir, "blobs")
}

// setter applies one config file value to cfg.
type setter func(cfg *Config, v string) error

func setString(field func(*Config) *string) setter {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func setInt(field func(*Config) *int) setter {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func setDuration(field func(*Config) *time.Duration) setter {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

func setBool(field func(*Config) *bool) setter {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

var setters = map[string]setter{
	"datadir":          setString(func(c *Config) *string { return &c.DataDir }),
	"listen":           setString(func(c *Config) *string { return &c.ListenAddr }),
	"network":          setString(func(c *Config) *string { return &c.Network }),
	"loglevel":         setString(func(c *Config) *string { return &c.LogLevel }),
	"logfile":          setString(func(c *Config) *string { return &c.LogFile }),
	"ledger":           setString(func(c *Config) *string { return &c.Ledger }),
	"rpcurl":           setString(func(c *Config) *string { return &c.RPCURL }),
	"rpcuser":          setString(func(c *Config) *string { return &c.RPCUser }),
	"rpcpass":          setString(func(c *Config) *string { return &c.RPCPass }),
	"rpcretries":       setInt(func(c *Config) *int { return &c.RPCRetries }),
	"operatorkey":      setString(func(c *Config) *string { return &c.OperatorKey }),
	"keydir":           setString(func(c *Config) *string { return &c.KeyDir }),
	"minconfirmations": setInt(func(c *Config) *int { return &c.MinConfirmations }),
	"pollattempts":     setInt(func(c *Config) *int { return &c.PollAttempts }),
	"pollmin":          setDuration(func(c *Config) *time.Duration { return &c.PollMin }),
	"pollmax":          setDuration(func(c *Config) *time.Duration { return &c.PollMax }),
	"maxrecordsize":    setInt(func(c *Config) *int { return &c.MaxRecordSize }),
	"contentpolicy":    setString(func(c *Config) *string { return &c.ContentPolicy }),
	"blobdir":          setString(func(c *Config) *string { return &c.BlobDir }),
	"index":            setString(func(c *Config) *string { return &c.Index }),
	"postgresdsn":      setString(func(c *Config) *string { return &c.PostgresDSN }),
	"jwtsecret":        setString(func(c *Config) *string { return &c.JWTSecret }),
	"uniquenames":      setBool(func(c *Config) *bool { return &c.UniqueNames }),
}

// LoadConfig reads the config file at path on top of DefaultConfig.
// Returns ErrConfigNotFound if the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		set, ok := setters[key]
		if !ok {
			continue
		}
		if err := set(&cfg, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %s: %v", ErrInvalidConfigLine, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with any LEDGERFS_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Load reads the config file from dataDir (a missing file yields defaults),
// applies environment overrides and validates the result.
func Load(dataDir string) (Config, error) {
	cfg, err := LoadConfig(ConfigPath(dataDir))
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return cfg, err
	}
	if cfg.DataDir == DefaultDataDir() {
		cfg.DataDir = dataDir
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, error) {
	idx := strings.IndexByte(line, '=')
	if idx <= 0 {
		return "", "", ErrInvalidConfigLine
	}
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, value, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
// Secrets supplied through the environment are not written.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# ledgerfs Configuration\n\n")
	kv := func(k, v string) { fmt.Fprintf(&b, "%s = %s\n", k, v) }

	kv("datadir", cfg.DataDir)
	kv("listen", cfg.ListenAddr)
	kv("network", cfg.Network)
	kv("loglevel", cfg.LogLevel)
	kv("logfile", cfg.LogFile)
	b.WriteString("\n# Ledger\n")
	kv("ledger", cfg.Ledger)
	kv("rpcurl", cfg.RPCURL)
	kv("rpcuser", cfg.RPCUser)
	kv("rpcretries", strconv.Itoa(cfg.RPCRetries))
	kv("operatorkey", cfg.OperatorKey)
	kv("keydir", cfg.KeyDir)
	kv("minconfirmations", strconv.Itoa(cfg.MinConfirmations))
	kv("pollattempts", strconv.Itoa(cfg.PollAttempts))
	kv("pollmin", cfg.PollMin.String())
	kv("pollmax", cfg.PollMax.String())
	b.WriteString("\n# Records\n")
	kv("maxrecordsize", strconv.Itoa(cfg.MaxRecordSize))
	kv("contentpolicy", cfg.ContentPolicy)
	kv("blobdir", cfg.BlobDir)
	b.WriteString("\n# Index\n")
	kv("index", cfg.Index)
	kv("postgresdsn", cfg.PostgresDSN)
	kv("uniquenames", strconv.FormatBool(cfg.UniqueNames))

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
