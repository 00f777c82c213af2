/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "dispatch"

const (
	cfgKeyWorkers                       = "workers"
	cfgKeyMaxPending                    = "maxPending"
	cfgKeyRequestsPerMinute             = "requestsPerMinute"
	cfgKeyRetriesMaxAttempts            = "retries.maxAttempts"
	cfgKeyRetriesBackoffInitialInterval = "retries.exponentialBackoffInitialInterval"
	cfgKeyRetriesBackoffMaxInterval     = "retries.exponentialBackoffMaxInterval"
)

// DefaultRequestsPerMinute is the default client-side cap on physical calls.
const DefaultRequestsPerMinute = 30

// Config represents a set of configuration parameters for the dispatcher.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader.
type Config struct {
	// Workers is the number of concurrent dispatch workers.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`

	// MaxPending bounds the pending queue; 0 means unlimited.
	MaxPending int `mapstructure:"maxPending" yaml:"maxPending" json:"maxPending"`

	// RequestsPerMinute is a client-side cap on physical calls; 0 disables it.
	RequestsPerMinute int `mapstructure:"requestsPerMinute" yaml:"requestsPerMinute" json:"requestsPerMinute"`

	// Retries configures the retry policy.
	Retries RetriesConfig `mapstructure:"retries" yaml:"retries" json:"retries"`

	keyPrefix string
}

// RetriesConfig represents configuration options for retrying failed upstream calls.
type RetriesConfig struct {
	// MaxAttempts is the number of retries after the first call.
	// Zero means DefaultMaxRetryAttempts; NoRetries (-1) disables retries.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// ExponentialBackoffInitialInterval is the first retry delay.
	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"`

	// ExponentialBackoffMaxInterval caps the retry delay growth.
	ExponentialBackoffMaxInterval time.Duration `mapstructure:"exponentialBackoffMaxInterval" yaml:"exponentialBackoffMaxInterval" json:"exponentialBackoffMaxInterval"`
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
	dp.SetDefault(cfgKeyWorkers, DefaultWorkers)
	dp.SetDefault(cfgKeyMaxPending, 0)
	dp.SetDefault(cfgKeyRequestsPerMinute, DefaultRequestsPerMinute)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesBackoffInitialInterval, DefaultExponentialBackoffInitialInterval)
	dp.SetDefault(cfgKeyRetriesBackoffMaxInterval, DefaultExponentialBackoffMaxInterval)
}

// Set sets configuration values from the data provider.
func (c *Config) Set(dp config.DataProvider) error {
	workers, err := dp.GetInt(cfgKeyWorkers)
	if err != nil {
		return err
	}
	if workers <= 0 {
		return dp.WrapKeyErr(cfgKeyWorkers, fmt.Errorf("must be positive"))
	}
	c.Workers = workers

	maxPending, err := dp.GetInt(cfgKeyMaxPending)
	if err != nil {
		return err
	}
	if maxPending < 0 {
		return dp.WrapKeyErr(cfgKeyMaxPending, fmt.Errorf("must not be negative"))
	}
	c.MaxPending = maxPending

	requestsPerMinute, err := dp.GetInt(cfgKeyRequestsPerMinute)
	if err != nil {
		return err
	}
	if requestsPerMinute < 0 {
		return dp.WrapKeyErr(cfgKeyRequestsPerMinute, fmt.Errorf("must not be negative"))
	}
	c.RequestsPerMinute = requestsPerMinute

	maxAttempts, err := dp.GetInt(cfgKeyRetriesMaxAttempts)
	if err != nil {
		return err
	}
	if maxAttempts < NoRetries {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("must not be less than %d (no retries)", NoRetries))
	}
	c.Retries.MaxAttempts = maxAttempts

	initialInterval, err := dp.GetDuration(cfgKeyRetriesBackoffInitialInterval)
	if err != nil {
		return err
	}
	if initialInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetriesBackoffInitialInterval, fmt.Errorf("must be positive"))
	}
	c.Retries.ExponentialBackoffInitialInterval = initialInterval

	maxInterval, err := dp.GetDuration(cfgKeyRetriesBackoffMaxInterval)
	if err != nil {
		return err
	}
	if maxInterval < initialInterval {
		return dp.WrapKeyErr(cfgKeyRetriesBackoffMaxInterval, fmt.Errorf("must not be less than the initial interval"))
	}
	c.Retries.ExponentialBackoffMaxInterval = maxInterval

	return nil
}

// BackoffPolicy builds the backoff policy described by the retries configuration.
func (c *RetriesConfig) BackoffPolicy() BackoffPolicy {
	initialInterval := c.ExponentialBackoffInitialInterval
	if initialInterval <= 0 {
		initialInterval = DefaultExponentialBackoffInitialInterval
	}
	maxInterval := c.ExponentialBackoffMaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultExponentialBackoffMaxInterval
	}
	return NewExponentialBackoffPolicy(initialInterval, maxInterval)
}
