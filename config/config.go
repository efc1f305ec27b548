package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"marketd/crypto"
	"marketd/native/fees"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenRPC             string   `toml:"ListenRPC"`
	DataDir               string   `toml:"DataDir"`
	Environment           string   `toml:"Environment"`
	Operator              string   `toml:"Operator"`
	Custody               string   `toml:"Custody"`
	FeeBps                uint32   `toml:"FeeBps"`
	FeeRecipient          string   `toml:"FeeRecipient"`
	MinBidIncrement       string   `toml:"MinBidIncrement"`
	BidWithdrawalLockSecs int64    `toml:"BidWithdrawalLockSecs"`
	AcceptedMedia         []string `toml:"AcceptedMedia"`
	RPCToken              string   `toml:"RPCToken"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ListenRPC:             "127.0.0.1:8645",
		DataDir:               "./marketd-data",
		Environment:           "dev",
		FeeBps:                250,
		MinBidIncrement:       "1",
		BidWithdrawalLockSecs: 900,
	}
}

// Load reads the configuration from path. A missing file yields the defaults;
// a malformed or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internal consistency.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenRPC) == "" {
		return fmt.Errorf("config: ListenRPC must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.FeeBps > fees.MaxPlatformFeeBps {
		return fmt.Errorf("config: FeeBps %d exceeds the %d cap", c.FeeBps, fees.MaxPlatformFeeBps)
	}
	if c.BidWithdrawalLockSecs < 0 {
		return fmt.Errorf("config: BidWithdrawalLockSecs must be non-negative")
	}
	if strings.TrimSpace(c.Operator) == "" {
		return fmt.Errorf("config: Operator address is required")
	}
	for name, value := range map[string]string{
		"Operator":     c.Operator,
		"Custody":      c.Custody,
		"FeeRecipient": c.FeeRecipient,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	for _, medium := range c.AcceptedMedia {
		if _, err := crypto.DecodeAddress(medium); err != nil {
			return fmt.Errorf("config: AcceptedMedia entry %q: %w", medium, err)
		}
	}
	if c.MinBidIncrement != "" {
		if _, err := c.ParseMinBidIncrement(); err != nil {
			return err
		}
	}
	return nil
}

// ParseMinBidIncrement returns the configured minimum bid increment as an
// integer in the smallest currency unit.
func (c Config) ParseMinBidIncrement() (*big.Int, error) {
	value := strings.TrimSpace(c.MinBidIncrement)
	if value == "" {
		return big.NewInt(1), nil
	}
	increment, ok := new(big.Int).SetString(value, 10)
	if !ok || increment.Sign() <= 0 {
		return nil, fmt.Errorf("config: MinBidIncrement %q is not a positive integer", c.MinBidIncrement)
	}
	return increment, nil
}
