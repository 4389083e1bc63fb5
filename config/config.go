// Package config loads the featurewindow configuration file and turns it into
// the validated schema and store settings the operators are built from.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacentio/featurewindow/internal/logging"
	"github.com/jacentio/featurewindow/schema"
	"github.com/jacentio/featurewindow/store"
)

// Config is the whole configuration file.
type Config struct {
	Table            string        `yaml:"table"`
	ColumnFamily     string        `yaml:"column_family"`
	DocumentDuration string        `yaml:"document_duration"`
	TTLAttribute     string        `yaml:"ttl_attribute"`
	CreateTimeout    time.Duration `yaml:"create_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`

	// AccessKind is "write", "scan-by-key" or "scan-by-range".
	AccessKind  string             `yaml:"access_kind"`
	Columns     Columns            `yaml:"columns"`
	Conventions schema.Conventions `yaml:"conventions"`

	// Access overrides the default constraints of AccessKind.
	Access *Access `yaml:"access,omitempty"`

	AWS     AWS            `yaml:"aws"`
	Log     logging.Config `yaml:"log"`
	Metrics Metrics        `yaml:"metrics"`
}

// Columns are the declared input and output column lists.
type Columns struct {
	Input  []string `yaml:"input"`
	Output []string `yaml:"output"`
}

// Access lists the mandatory and invalid fields of the access pattern.
type Access struct {
	Mandatory []string `yaml:"mandatory"`
	Invalid   []string `yaml:"invalid"`
}

// AWS selects the DynamoDB endpoint.
type AWS struct {
	Region   string `yaml:"region"`
	Profile  string `yaml:"profile"`
	Endpoint string `yaml:"endpoint"` // e.g. DynamoDB Local
}

// Metrics configures the Prometheus handle.
type Metrics struct {
	Namespace string `yaml:"namespace"`
	Group     string `yaml:"group"`
	// Address serves /metrics when set, e.g. ":9090".
	Address string `yaml:"address"`
}

// Default returns a configuration for the write access pattern with every
// optional value set.
func Default() *Config {
	sc := store.DefaultConfig()
	return &Config{
		Table:            sc.Table,
		ColumnFamily:     sc.ColumnFamily,
		DocumentDuration: "90d",
		TTLAttribute:     sc.TTLAttribute,
		CreateTimeout:    sc.CreateTimeout,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      5 * time.Second,
		AccessKind:       string(schema.KindWrite),
		Conventions:      schema.DefaultConventions(),
		Log:              logging.DefaultConfig(),
		Metrics:          Metrics{Namespace: "featurewindow"},
	}
}

// Load reads path, substitutes ${VAR} references from the environment and
// parses the result over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML over Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Substituted values are not expanded again.
func substituteEnvVars(content string) string {
	pos := 0
	for {
		start := strings.Index(content[pos:], "${")
		if start == -1 {
			break
		}
		start += pos
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		value := os.Getenv(content[start+2 : end])
		content = content[:start] + value + content[end+1:]
		pos = start + len(value)
	}
	return content
}

// Validate checks every field that does not need the column lists. Column
// checks happen in Setup.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Table) == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if len(c.Columns.Input) == 0 {
		errs = append(errs, errors.New("columns.input is required"))
	}
	if _, err := schema.ParseAccessKind(c.AccessKind); err != nil {
		errs = append(errs, err)
	}
	if c.DocumentDuration != "" {
		if _, err := schema.ParseRetention(c.DocumentDuration); err != nil {
			errs = append(errs, err)
		}
	}
	if c.WriteTimeout < 0 || c.ReadTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Retention returns the parsed document duration, zero when unset.
func (c *Config) Retention() (time.Duration, error) {
	if c.DocumentDuration == "" {
		return 0, nil
	}
	return schema.ParseRetention(c.DocumentDuration)
}

// Store returns the store settings.
func (c *Config) Store() (store.Config, error) {
	retention, err := c.Retention()
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Table:         c.Table,
		ColumnFamily:  c.ColumnFamily,
		Retention:     retention,
		TTLAttribute:  c.TTLAttribute,
		CreateTimeout: c.CreateTimeout,
	}, nil
}

// AccessPattern returns the constraints the declared columns are checked
// against: the defaults of AccessKind unless Access overrides them.
func (c *Config) AccessPattern() (schema.AccessPattern, error) {
	kind, err := schema.ParseAccessKind(c.AccessKind)
	if err != nil {
		return schema.AccessPattern{}, err
	}
	p := schema.DefaultAccessPattern(kind, c.Conventions)
	if c.Access != nil {
		p.MandatoryFields = c.Access.Mandatory
		p.InvalidFields = c.Access.Invalid
	}
	return p, nil
}

// Setup builds the column index and descriptor and certifies the declared
// input columns against the access pattern. It performs no I/O; callers
// construct store components only after it succeeds.
func (c *Config) Setup() (*schema.Descriptor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	idx, err := schema.NewColumnIndex(c.Columns.Input, c.Columns.Output)
	if err != nil {
		return nil, err
	}
	pattern, err := c.AccessPattern()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(pattern, idx.InputColumns()); err != nil {
		return nil, err
	}
	return schema.NewDescriptor(idx, c.Conventions), nil
}
