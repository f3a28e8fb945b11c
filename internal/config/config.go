// Package config loads the counterctl TOML configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/unkn0wn-root/ledgercache/codec"
	"github.com/unkn0wn-root/ledgercache/ledger"
)

const (
	DefaultEndpoint     = "http://127.0.0.1:8899"
	DefaultSeed         = "counter"
	DefaultFetchTimeout = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

type Config struct {
	Endpoint          string        `toml:"Endpoint"`
	ProgramID         string        `toml:"ProgramID"`
	Seed              string        `toml:"Seed"`
	Commitment        string        `toml:"Commitment"`
	Keypair           string        `toml:"Keypair"`
	RequestsPerSecond float64       `toml:"RequestsPerSecond"`
	Burst             int           `toml:"Burst"`
	FetchTimeout      time.Duration `toml:"FetchTimeout"`
	PollInterval      time.Duration `toml:"PollInterval"`
	SkipPreflight     bool          `toml:"SkipPreflight"`
	MetricsAddr       string        `toml:"MetricsAddr"`

	Log      LogConfig      `toml:"Log"`
	Snapshot SnapshotConfig `toml:"Snapshot"`
}

type LogConfig struct {
	Backend string `toml:"Backend"` // zap | logrus | slog
	Level   string `toml:"Level"`   // debug | info | warn | error
}

type SnapshotConfig struct {
	Provider  string        `toml:"Provider"` // "" | ristretto | bigcache | redis
	Codec     string        `toml:"Codec"`    // json | cbor | msgpack | proto
	RedisAddr string        `toml:"RedisAddr"`
	Namespace string        `toml:"Namespace"`
	TTL       time.Duration `toml:"TTL"`
	MaxBytes  int           `toml:"MaxBytes"` // decode limit; 0 disables
}

// Default returns a config for a local validator with snapshots disabled.
func Default() *Config {
	return &Config{
		Endpoint:     DefaultEndpoint,
		Seed:         DefaultSeed,
		Commitment:   string(ledger.CommitmentConfirmed),
		FetchTimeout: DefaultFetchTimeout,
		PollInterval: DefaultPollInterval,
		Log:          LogConfig{Backend: "zap", Level: "info"},
		Snapshot:     SnapshotConfig{Codec: "json", Namespace: "counter", TTL: 10 * time.Minute},
	}
}

// Load reads path over Default. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(doc string) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(doc, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %s", undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for keys set to empty values.
func (c *Config) applyDefaults() {
	d := Default()
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Seed == "" {
		c.Seed = d.Seed
	}
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Log.Backend == "" {
		c.Log.Backend = d.Log.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Snapshot.Codec == "" {
		c.Snapshot.Codec = d.Snapshot.Codec
	}
	if c.Snapshot.Namespace == "" {
		c.Snapshot.Namespace = d.Snapshot.Namespace
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.ProgramID == "" {
		errs = append(errs, errors.New("ProgramID is required"))
	} else if _, err := ledger.ParsePublicKey(c.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("ProgramID: %w", err))
	}
	if _, err := ledger.ParseCommitment(c.Commitment); err != nil {
		errs = append(errs, fmt.Errorf("Commitment: %w", err))
	}
	if len(c.Seed) > 32 {
		errs = append(errs, fmt.Errorf("Seed: %d bytes, max 32", len(c.Seed)))
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		errs = append(errs, errors.New("RequestsPerSecond and Burst must not be negative"))
	}
	switch c.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		errs = append(errs, fmt.Errorf("Log.Backend: unknown backend %q", c.Log.Backend))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("Log.Level: unknown level %q", c.Log.Level))
	}
	switch c.Snapshot.Provider {
	case "", "ristretto", "bigcache":
	case "redis":
		if c.Snapshot.RedisAddr == "" {
			errs = append(errs, errors.New("Snapshot.RedisAddr is required for the redis provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("Snapshot.Provider: unknown provider %q", c.Snapshot.Provider))
	}
	if !validCodec(c.Snapshot.Codec) {
		errs = append(errs, fmt.Errorf("Snapshot.Codec: unknown codec %q", c.Snapshot.Codec))
	}
	return errors.Join(errs...)
}

func validCodec(name string) bool {
	if name == "proto" || name == "protobuf" {
		return true
	}
	for _, n := range codec.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Program returns the parsed ProgramID. Call after Validate.
func (c *Config) Program() ledger.PublicKey {
	pk, _ := ledger.ParsePublicKey(c.ProgramID)
	return pk
}
