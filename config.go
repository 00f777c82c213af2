/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package sodispatch

import (
	"github.com/acronis/go-appkit/config"

	"github.com/stackmcp/sodispatch/accessmode"
	"github.com/stackmcp/sodispatch/dispatch"
	"github.com/stackmcp/sodispatch/resultcache"
	"github.com/stackmcp/sodispatch/stackexchange"
)

// Config represents a set of configuration parameters for the client and all
// its underlying components. Configuration can be loaded in different formats
// (YAML, JSON) using config.Loader.
type Config struct {
	StackExchange *stackexchange.Config `mapstructure:"stackExchange" yaml:"stackExchange" json:"stackExchange"`
	Dispatch      *dispatch.Config      `mapstructure:"dispatch" yaml:"dispatch" json:"dispatch"`
	ResultCache   *resultcache.Config   `mapstructure:"resultCache" yaml:"resultCache" json:"resultCache"`
	AccessMode    *accessmode.Config    `mapstructure:"accessMode" yaml:"accessMode" json:"accessMode"`
}

var _ config.Config = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{
		StackExchange: stackexchange.NewConfig(),
		Dispatch:      dispatch.NewConfig(),
		ResultCache:   resultcache.NewConfig(),
		AccessMode:    accessmode.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values for the data provider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from the data provider.
func (c *Config) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
