package stats

import "time"

// MaskingEvent is one row of the usage-stats table. It records what a
// masking call found and decided, as category counts and the gate verdict,
// and deliberately has no column that could hold input text.
type MaskingEvent struct {
	ID        int64     `db:"id" json:"id" parquet:"id"`
	Category  string    `db:"category" json:"category" parquet:"category"`
	Matches   int       `db:"matches" json:"matches" parquet:"matches"`
	Action    string    `db:"action" json:"action" parquet:"action"`
	CreatedAt time.Time `db:"created_at" json:"created_at" parquet:"created_at"`
}

// CategorySummary aggregates events per category.
type CategorySummary struct {
	Category    string `db:"category" json:"category"`
	Events      int64  `db:"events" json:"events"`
	TotalCounts int64  `db:"total_counts" json:"total_counts"`
}

// Config contains the usage-stats database configuration.
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}
