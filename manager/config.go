package manager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/orbql/dialect"
)

// Config holds the connection manager configuration.
type Config struct {
	// Dialect is one of the dialect names.
	Dialect string `yaml:"dialect"`
	// DSN is the data source name passed to the database driver.
	DSN string `yaml:"dsn"`

	// Retries is the maximum number of attempts of a call whose
	// connection was lost, the first one included. Zero runs it once.
	Retries int `yaml:"retries"`
	// Backoff is the base delay between two attempts. It grows linearly
	// with the attempt number.
	Backoff time.Duration `yaml:"backoff"`
	// StatementTimeout bounds every call of a session. Zero disables it.
	StatementTimeout time.Duration `yaml:"statement_timeout"`

	// MaxSessions bounds the number of sessions holding a connection at
	// the same time. Zero means no limit.
	MaxSessions int `yaml:"max_sessions"`
	// MaxIdleConns is the number of idle connections kept by the pool.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// SlowThreshold is the duration above which statements are counted
	// as slow.
	SlowThreshold time.Duration `yaml:"slow_threshold"`

	// SessionVars are set on the connection before every statement.
	SessionVars map[string]string `yaml:"session_vars"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Dialect:       dialect.Postgres,
		Retries:       3,
		Backoff:       100 * time.Millisecond,
		MaxIdleConns:  2,
		SlowThreshold: 3 * time.Second,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := dialect.Validate(c.Dialect); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	var errs []error
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must be >= 0, got %d", c.Retries))
	}
	if c.Backoff < 0 {
		errs = append(errs, fmt.Errorf("backoff must be >= 0, got %s", c.Backoff))
	}
	if c.StatementTimeout < 0 {
		errs = append(errs, fmt.Errorf("statement_timeout must be >= 0, got %s", c.StatementTimeout))
	}
	if c.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("max_sessions must be >= 0, got %d", c.MaxSessions))
	}
	if c.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("max_idle_conns must be >= 0, got %d", c.MaxIdleConns))
	}
	if len(c.SessionVars) > 0 && c.Dialect == dialect.SQLite {
		errs = append(errs, errors.New("session_vars are not supported by sqlite"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("manager: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseConfig decodes a YAML configuration on top of the defaults.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("manager: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("manager: read config: %w", err)
	}
	return ParseConfig(data)
}
