package store

import "time"

// DefaultColumnFamily is the column family documents are written under.
const DefaultColumnFamily = "ts"

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the document table.
	// Default: "featurewindow_documents"
	Table string

	// ColumnFamily prefixes every cell attribute ("<family>:<qualifier>").
	// Default: "ts"
	ColumnFamily string

	// Retention is the maximum age of a document. Each put stamps the TTL
	// attribute with write time + Retention. Zero disables the stamp.
	Retention time.Duration

	// TTLAttribute is the item attribute DynamoDB expires documents on.
	// Default: "ttl"
	TTLAttribute string

	// CreateTimeout bounds how long CreateTable and Initialize wait for the
	// table to become active.
	// Default: 2 minutes
	CreateTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:         "featurewindow_documents",
		ColumnFamily:  DefaultColumnFamily,
		TTLAttribute:  "ttl",
		CreateTimeout: 2 * time.Minute,
	}
}

// validate fills unset values with their defaults.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.ColumnFamily == "" {
		c.ColumnFamily = d.ColumnFamily
	}
	if c.TTLAttribute == "" {
		c.TTLAttribute = d.TTLAttribute
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = d.CreateTimeout
	}
	if c.Retention < 0 {
		c.Retention = 0
	}
}
