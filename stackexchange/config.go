/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package stackexchange

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-appkit/config"
)

// Default parameter values for Config.
const (
	DefaultBaseURL   = "https://api.stackexchange.com/2.3"
	DefaultSite      = "stackoverflow"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "sodispatch"
)

const cfgDefaultKeyPrefix = "stackExchange"

const (
	cfgKeyBaseURL     = "baseUrl"
	cfgKeySite        = "site"
	cfgKeyAPIKey      = "apiKey"
	cfgKeyAccessToken = "accessToken"
	cfgKeyTimeout     = "timeout"
	cfgKeyUserAgent   = "userAgent"
)

// Config represents a set of configuration parameters for the Stack Exchange API client.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader.
type Config struct {
	// BaseURL is the API root, including the API version path segment.
	BaseURL string `mapstructure:"baseUrl" yaml:"baseUrl" json:"baseUrl"`

	// Site is the Stack Exchange site queried by all calls.
	Site string `mapstructure:"site" yaml:"site" json:"site"`

	// Key is the registered application key. Empty means anonymous access only.
	Key string `mapstructure:"apiKey" yaml:"apiKey" json:"apiKey"`

	// AccessToken is an optional user token sent along with the key.
	AccessToken string `mapstructure:"accessToken" yaml:"accessToken" json:"accessToken"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// UserAgent is sent in all outgoing requests.
	UserAgent string `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		BaseURL:   DefaultBaseURL,
		Site:      DefaultSite,
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
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
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeySite, DefaultSite)
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
}

// Set sets configuration values from the data provider.
func (c *Config) Set(dp config.DataProvider) error {
	baseURL, err := dp.GetString(cfgKeyBaseURL)
	if err != nil {
		return err
	}
	if _, err = url.Parse(baseURL); err != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, err)
	}
	c.BaseURL = baseURL

	site, err := dp.GetString(cfgKeySite)
	if err != nil {
		return err
	}
	if site == "" {
		return dp.WrapKeyErr(cfgKeySite, fmt.Errorf("must not be empty"))
	}
	c.Site = site

	if c.Key, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	if c.AccessToken, err = dp.GetString(cfgKeyAccessToken); err != nil {
		return err
	}

	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must not be negative"))
	}
	c.Timeout = timeout

	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}

	return nil
}
