// Package config holds the client-wide settings shared by every connection a
// client owns.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"
)

// Config groups the settings required to initialise a Client. The zero value
// is usable; WithDefaults fills in the gaps.
type Config struct {
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// ReadTimeout bounds how long a request cycle waits for the broker to
	// acknowledge a command.
	ReadTimeout time.Duration

	// WriteTimeout bounds each socket write within a request cycle.
	WriteTimeout time.Duration

	// TLS enables TLS on every connection when non-nil. The handshake is
	// performed at dial time with this configuration.
	TLS *tls.Config

	// AuthSecret is held for brokers that require authorization. The client
	// only stores it; negotiation is up to the embedding application.
	AuthSecret []byte

	// WorkerPoolSize is the number of goroutines in the lazily created
	// worker pool that runs consumer handlers and closure notifications.
	// Defaults to 6.
	WorkerPoolSize int

	// ClientID is reported in the IDENTIFY handshake. Defaults to the host
	// name.
	ClientID string

	// UserAgent is reported in the IDENTIFY handshake.
	UserAgent string
}

const (
	defaultDialTimeout  = 2 * time.Second
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second

	// DefaultWorkerPoolSize is the worker pool size used when the
	// configuration leaves WorkerPoolSize at zero.
	DefaultWorkerPoolSize = 6
)

// WithDefaults returns a copy of the configuration with zero values replaced
// by defaults.
func (c Config) WithDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = DefaultWorkerPoolSize
	}
	return c
}

// ValidateConfig rejects configurations that cannot work at runtime. Zero
// values are fine (defaults apply); negative values are not.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("nsqlink: config is required")
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("nsqlink: dial timeout must not be negative, got %v", c.DialTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("nsqlink: read timeout must not be negative, got %v", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("nsqlink: write timeout must not be negative, got %v", c.WriteTimeout)
	}
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("nsqlink: worker pool size must not be negative, got %d", c.WorkerPoolSize)
	}
	return nil
}

func (c Config) String() string {
	// Copy so the original keeps its secret.
	copy := c
	if len(copy.AuthSecret) > 0 {
		copy.AuthSecret = []byte("***REDACTED***")
	}
	return fmt.Sprintf("%+v", struct {
		DialTimeout    time.Duration
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		TLS            bool
		AuthSecret     string
		WorkerPoolSize int
		ClientID       string
		UserAgent      string
	}{
		DialTimeout:    copy.DialTimeout,
		ReadTimeout:    copy.ReadTimeout,
		WriteTimeout:   copy.WriteTimeout,
		TLS:            copy.TLS != nil,
		AuthSecret:     string(copy.AuthSecret),
		WorkerPoolSize: copy.WorkerPoolSize,
		ClientID:       copy.ClientID,
		UserAgent:      copy.UserAgent,
	})
}
