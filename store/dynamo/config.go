package dynamo

// Config holds configuration for the DynamoDB store.
type Config struct {
	// RecordsTable is the name of the records table.
	// Default: "espalier_records"
	RecordsTable string

	// NameIndex is the name of the natural-key GSI on the records table.
	// Default: "by_natural_key"
	NameIndex string

	// NumShards is the number of shards for the natural-key index.
	// Higher values spread a kind's index entries across more partitions.
	// A natural-key lookup always hits exactly one shard regardless.
	// Default: 1 (no sharding)
	// Max: 256
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RecordsTable: "espalier_records",
		NameIndex:    "by_natural_key",
		NumShards:    1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.RecordsTable == "" {
		c.RecordsTable = "espalier_records"
	}
	if c.NameIndex == "" {
		c.NameIndex = "by_natural_key"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
