/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "resultCache"

const (
	cfgKeyTTL        = "ttl"
	cfgKeyMaxEntries = "maxEntries"
)

// Config represents a set of configuration parameters for the result cache.
type Config struct {
	// TTL is the lifetime of each cache entry.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`

	// MaxEntries bounds the number of cache entries.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the data provider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTTL, DefaultTTL)
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
}

// Set sets configuration values from the data provider.
func (c *Config) Set(dp config.DataProvider) error {
	ttl, err := dp.GetDuration(cfgKeyTTL)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return dp.WrapKeyErr(cfgKeyTTL, fmt.Errorf("must be positive"))
	}
	c.TTL = ttl

	maxEntries, err := dp.GetInt(cfgKeyMaxEntries)
	if err != nil {
		return err
	}
	if maxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("must be positive"))
	}
	c.MaxEntries = maxEntries

	return nil
}
