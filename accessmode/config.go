/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package accessmode

import (
	"fmt"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "accessMode"

const (
	cfgKeyMode         = "mode"
	cfgKeyLowWaterMark = "lowWaterMark"
)

// Config represents a set of configuration parameters for choosing the access mode.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader.
type Config struct {
	// Mode pins the transport mode or lets it be chosen per call (default "auto").
	Mode Mode `mapstructure:"mode" yaml:"mode" json:"mode"`

	// LowWaterMark is the remaining-quota threshold below which ModeAuto
	// falls back to anonymous calls.
	LowWaterMark int `mapstructure:"lowWaterMark" yaml:"lowWaterMark" json:"lowWaterMark"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
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
	dp.SetDefault(cfgKeyMode, ModeAuto.String())
	dp.SetDefault(cfgKeyLowWaterMark, DefaultLowWaterMark)
}

// Set sets configuration values from the data provider.
func (c *Config) Set(dp config.DataProvider) error {
	modeStr, err := dp.GetStringFromSet(
		cfgKeyMode, []string{ModeAuto.String(), ModeAuthenticated.String(), ModeUnauthenticated.String()}, true)
	if err != nil {
		return err
	}
	if c.Mode, err = ParseMode(modeStr); err != nil {
		return dp.WrapKeyErr(cfgKeyMode, err)
	}

	lowWaterMark, err := dp.GetInt(cfgKeyLowWaterMark)
	if err != nil {
		return err
	}
	if lowWaterMark <= 0 {
		return dp.WrapKeyErr(cfgKeyLowWaterMark, fmt.Errorf("must be positive"))
	}
	c.LowWaterMark = lowWaterMark

	return nil
}
