// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirEnvVar overrides the default data directory.
const DataDirEnvVar = "ICSIGN_DATA"

// DefaultDataDir is the default data directory for icsign
const DefaultDataDir = "~/.icsign"

// Config holds icsign configuration settings
type Config struct {
	Network              string `yaml:"network" description:"Replica URL recorded in signed messages" default:"https://icp0.io"`
	Identity             string `yaml:"identity" description:"PEM identity file (relative to data dir)" default:"identity.pem"`
	ExpireAfter          string `yaml:"expire_after" description:"Default validity window of signed messages (e.g. 5m, 1h 30m)" default:"5m"`
	CandidDir            string `yaml:"candid_dir" description:"Directory of <canister-id>.did interface files (relative to data dir)" default:"candid"`
	LedgerCanisterID     string `yaml:"ledger_canister_id" description:"ICP ledger canister for transfers" default:"ryjl3-tyaaa-aaaaa-aaaba-cai"`
	GovernanceCanisterID string `yaml:"governance_canister_id" description:"NNS governance canister owning neuron accounts" default:"rrkah-fqaaa-aaaaa-aaaaq-cai"`
	LookupTimeout        string `yaml:"lookup_timeout" description:"Timeout for reading a canister interface" default:"2s"`
	OutputFile           string `yaml:"output_file" description:"Default output file for signed messages" default:"message.json"`

	LockMemory bool `yaml:"lock_memory" description:"Lock process memory (mlockall) before loading the identity; fail if not permitted" default:"false"`

	// Unattended unlock of an encrypted identity
	PassphraseCommandArgv []string          `yaml:"passphrase_command_argv,omitempty" description:"Helper printing the identity passphrase; argv[0] relative to data dir"`
	PassphraseCommandEnv  map[string]string `yaml:"passphrase_command_env,omitempty" description:"Complete environment of the passphrase helper"`
}

// DefaultConfig returns the default configuration for runtime use.
func DefaultConfig() Config {
	return Config{
		Network:              "https://icp0.io",
		Identity:             "identity.pem",
		ExpireAfter:          "5m",
		CandidDir:            "candid",
		LedgerCanisterID:     "ryjl3-tyaaa-aaaaa-aaaba-cai",
		GovernanceCanisterID: "rrkah-fqaaa-aaaaa-aaaaq-cai",
		LookupTimeout:        "2s",
		OutputFile:           "message.json",
	}
}

// GetDataDir returns the data directory for icsign.
// Resolution order: -d flag > ICSIGN_DATA env var > ~/.icsign
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envDir := os.Getenv(DataDirEnvVar); envDir != "" {
		return envDir
	}
	// Expand ~ to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "" // Can't determine default
	}
	return filepath.Join(home, ".icsign")
}

// GetConfigPath returns the path to the config file in the data directory.
// Returns empty string if dataDir is empty.
func GetConfigPath(dataDir string) string {
	if dataDir == "" {
		return ""
	}
	return filepath.Join(dataDir, "config.yaml")
}

// LoadConfig loads configuration from config.yaml in the data directory.
// If dataDir is empty or the file doesn't exist, returns default config.
// Relative identity and candid paths are resolved against the data directory.
func LoadConfig(dataDir string) (Config, error) {
	config, err := LoadConfigFromPath(GetConfigPath(dataDir))
	if err != nil {
		return config, err
	}
	if dataDir != "" {
		config.Identity = ResolvePath(config.Identity, dataDir)
		config.CandidDir = ResolvePath(config.CandidDir, dataDir)
		if len(config.PassphraseCommandArgv) > 0 {
			config.PassphraseCommandArgv[0] = ResolvePath(config.PassphraseCommandArgv[0], dataDir)
		}
	}
	return config, nil
}

// LoadConfigFromPath loads configuration from the specified path.
// If path is empty or the file doesn't exist, returns default config.
func LoadConfigFromPath(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay config file values
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Fill in defaults for values explicitly set empty
	defaults := DefaultConfig()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&config.Network, defaults.Network)
	fill(&config.Identity, defaults.Identity)
	fill(&config.ExpireAfter, defaults.ExpireAfter)
	fill(&config.CandidDir, defaults.CandidDir)
	fill(&config.LedgerCanisterID, defaults.LedgerCanisterID)
	fill(&config.GovernanceCanisterID, defaults.GovernanceCanisterID)
	fill(&config.LookupTimeout, defaults.LookupTimeout)
	fill(&config.OutputFile, defaults.OutputFile)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks fields that can be checked without other packages.
// Durations and canister ids are parsed by their consumers.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Network)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid network '%s' in config (must be an http or https URL)", c.Network)
	}
	if _, err := c.LookupTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// LookupTimeoutDuration parses lookup_timeout.
func (c *Config) LookupTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.LookupTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid lookup_timeout '%s' in config", c.LookupTimeout)
	}
	return d, nil
}

// PassphraseCommand returns the configured passphrase helper, or nil.
func (c *Config) PassphraseCommand() *PassphraseCommand {
	if len(c.PassphraseCommandArgv) == 0 {
		return nil
	}
	return &PassphraseCommand{Argv: c.PassphraseCommandArgv, Env: c.PassphraseCommandEnv}
}

// ResolvePath resolves path relative to baseDir unless it is absolute.
// A leading ~/ expands to the home directory.
func ResolvePath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// DisplayConfig prints the current configuration
func DisplayConfig(w io.Writer, dataDir string) {
	config, err := LoadConfig(dataDir)
	configPath := GetConfigPath(dataDir)

	_, _ = fmt.Fprintln(w, "Current Configuration:")
	_, _ = fmt.Fprintln(w, "=====================")
	_, _ = fmt.Fprintf(w, "Data dir:      %s\n", dataDir)
	_, _ = fmt.Fprintf(w, "Config file:   %s\n", configPath)
	if err != nil {
		_, _ = fmt.Fprintf(w, "Error:         %v\n\n", err)
		return
	}
	_, _ = fmt.Fprintf(w, "Network:       %s\n", config.Network)
	_, _ = fmt.Fprintf(w, "Identity:      %s\n", config.Identity)
	_, _ = fmt.Fprintf(w, "Expire after:  %s\n", config.ExpireAfter)
	_, _ = fmt.Fprintf(w, "Candid dir:    %s\n", config.CandidDir)
	_, _ = fmt.Fprintf(w, "Ledger:        %s\n", config.LedgerCanisterID)
	_, _ = fmt.Fprintf(w, "Governance:    %s\n", config.GovernanceCanisterID)
	_, _ = fmt.Fprintf(w, "Lookup limit:  %s\n", config.LookupTimeout)
	_, _ = fmt.Fprintf(w, "Output file:   %s\n", config.OutputFile)
	_, _ = fmt.Fprintf(w, "Lock memory:   %t\n", config.LockMemory)
	if cmd := config.PassphraseCommand(); cmd != nil {
		_, _ = fmt.Fprintf(w, "Passphrase:    %s\n", cmd.Argv[0])
	}
	_, _ = fmt.Fprintln(w)
}
