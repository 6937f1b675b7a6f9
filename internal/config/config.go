// Package config loads and validates the one configuration document every
// UkweliDB database directory carries (§6 "Persisted layout ... one
// configuration document"), with a Defaults/Load/Validate/Save shape and
// strict, unknown-key-rejecting YAML parsing.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/elviscgn/UkweliDB/internal/crypto"
)

// CurrentSchemaVersion is written into every freshly initialized database's
// configuration document.
const CurrentSchemaVersion = 1

// Config is the root configuration document, written once at `init` time
// and never overridden by CLI flags afterward (§10.3 "reconfiguration is a
// new init").
type Config struct {
	DatabaseName   string `yaml:"database_name"`
	CreatedAt      int64  `yaml:"created_at"`
	GenesisSigner  string `yaml:"genesis_signer"`
	SchemaVersion  int    `yaml:"schema_version"`
	InstallationID string `yaml:"installation_id"`

	// Checksum is crypto.HashConfig over the rest of the document, stamped
	// by Save and re-verified by Load, so an on-disk edit or corruption of
	// the config file is caught at load time rather than silently taken as
	// ground truth (§3's definition-drift requirement, applied here to the
	// configuration document rather than a workflow file).
	Checksum string `yaml:"checksum,omitempty"`
}

// checksumBasis returns the deterministic bytes a Config's checksum is
// computed over: a YAML encoding of every field except Checksum itself.
func (c Config) checksumBasis() ([]byte, error) {
	c.Checksum = ""
	return yaml.Marshal(c)
}

// Defaults returns a Config with sensible default values. CreatedAt is left
// at zero; callers stamp it at init time since the core may not call
// time.Now (the ledger accepts timestamps as plain arguments).
func Defaults() *Config {
	return &Config{
		DatabaseName:   "ukweli",
		GenesisSigner:  "system",
		SchemaVersion:  CurrentSchemaVersion,
		InstallationID: uuid.NewString(),
	}
}

// Load reads a YAML config file and overlays it onto Defaults, rejecting
// unknown top-level keys the way §4.4 rejects unknown keys in workflow
// definition documents.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	if cfg.Checksum != "" {
		basis, err := cfg.checksumBasis()
		if err != nil {
			return nil, fmt.Errorf("config: compute checksum: %w", err)
		}
		want := fmt.Sprintf("%x", crypto.HashConfig(basis).Bytes())
		if want != cfg.Checksum {
			return nil, fmt.Errorf("config: checksum mismatch: %s has been modified or corrupted since it was written", path)
		}
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, stamping a fresh checksum over every
// field but Checksum itself.
func Save(cfg *Config, path string) error {
	basis, err := cfg.checksumBasis()
	if err != nil {
		return fmt.Errorf("config: compute checksum: %w", err)
	}
	cfg.Checksum = fmt.Sprintf("%x", crypto.HashConfig(basis).Bytes())

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.DatabaseName == "" {
		return fmt.Errorf("database_name is required")
	}
	if c.GenesisSigner == "" {
		return fmt.Errorf("genesis_signer is required")
	}
	if c.SchemaVersion < 1 {
		return fmt.Errorf("schema_version must be >= 1")
	}
	if _, err := uuid.Parse(c.InstallationID); err != nil {
		return fmt.Errorf("installation_id must be a valid uuid: %w", err)
	}
	return nil
}

// NewAtInit returns a Config for a freshly initialized database, stamping
// CreatedAt to now.
func NewAtInit(databaseName, genesisSigner string) *Config {
	cfg := Defaults()
	cfg.DatabaseName = databaseName
	cfg.GenesisSigner = genesisSigner
	cfg.CreatedAt = time.Now().Unix()
	return cfg
}
