package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	URLPrefix       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Spatial database.
	DatabaseURL         string
	PGMaxOpenConns      int
	PGMaxIdleConns      int
	QueryTimeout        time.Duration
	DBReconnectDelay    time.Duration
	DBReconnectAttempts int

	// Point layers and row limits. A limit of 0 means no limit.
	TableReports            string
	TableReportsUnconfirmed string
	ReportsLimit            int
	UnconfirmedLimit        int

	// Result cache.
	CacheTimeout       time.Duration
	CachePurgeInterval time.Duration

	// Route groups and presentation.
	DataEnabled        bool
	AggregatesEnabled  bool
	CompressionEnabled bool
	ArchiveLevel       string
	LegacyError204     bool

	Layers Layers

	// Optional shared cache tier; disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional aggregate feed; disabled when KafkaBrokers is empty.
	KafkaBrokers         []string
	KafkaAggregatesTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	queryTimeout, err := parseDuration("QUERY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	reconnectDelay, err := parseDuration("DB_RECONNECT_DELAY", "3m")
	if err != nil {
		return nil, err
	}
	purgeInterval, err := parseDuration("CACHE_PURGE_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8081"),
		URLPrefix:       normalizePrefix(os.Getenv("URL_PREFIX")),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:      sharedcfg.EnvOrDefault("DATABASE_URL", BuildPostgresDSN()),
		QueryTimeout:     queryTimeout,
		DBReconnectDelay: reconnectDelay,

		TableReports:            sharedcfg.EnvOrDefault("TBL_REPORTS", "all_reports"),
		TableReportsUnconfirmed: sharedcfg.EnvOrDefault("TBL_REPORTS_UNCONFIRMED", "tweet_reports_unconfirmed"),

		CachePurgeInterval: purgeInterval,

		DataEnabled:        parseBool("DATA_ENABLED", true),
		AggregatesEnabled:  parseBool("AGGREGATES_ENABLED", true),
		CompressionEnabled: parseBool("COMPRESSION_ENABLED", false),
		ArchiveLevel:       sharedcfg.EnvOrDefault("ARCHIVE_LEVEL", "rw"),
		LegacyError204:     parseBool("LEGACY_ERROR_204", true),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaAggregatesTopic: sharedcfg.EnvOrDefault("KAFKA_AGGREGATES_TOPIC", "area-aggregates"),
	}

	if cfg.PGMaxOpenConns, err = parseInt("PG_MAX_OPEN_CONNS", 50, 1); err != nil {
		return nil, err
	}
	if cfg.PGMaxIdleConns, err = parseInt("PG_MAX_IDLE_CONNS", 25, 0); err != nil {
		return nil, err
	}
	if cfg.DBReconnectAttempts, err = parseInt("DB_RECONNECT_ATTEMPTS", 5, 1); err != nil {
		return nil, err
	}
	if cfg.ReportsLimit, err = parseInt("REPORTS_LIMIT", 0, 0); err != nil {
		return nil, err
	}
	if cfg.UnconfirmedLimit, err = parseInt("UNCONFIRMED_LIMIT", 0, 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseInt("REDIS_DB", 0, 0); err != nil {
		return nil, err
	}
	cacheTimeoutMS, err := parseInt("CACHE_TIMEOUT_MS", 60000, 0)
	if err != nil {
		return nil, err
	}
	cfg.CacheTimeout = time.Duration(cacheTimeoutMS) * time.Millisecond

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	layers, err := LoadLayers(os.Getenv("LAYERS_FILE"))
	if err != nil {
		return nil, err
	}
	cfg.Layers = layers

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TableReports == "" {
		return errors.New("TBL_REPORTS is required")
	}
	if c.TableReportsUnconfirmed == "" {
		return errors.New("TBL_REPORTS_UNCONFIRMED is required")
	}
	if len(c.Layers.Levels) == 0 {
		return errors.New("at least one aggregate level is required")
	}
	if _, ok := c.Layers.Level(c.ArchiveLevel); !ok {
		return fmt.Errorf("ARCHIVE_LEVEL %q is not a configured aggregate level", c.ArchiveLevel)
	}
	if c.KafkaAggregatesTopic == "" && len(c.KafkaBrokers) > 0 {
		return errors.New("KAFKA_AGGREGATES_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// BuildPostgresDSN assembles a connection string from the PG_* variables.
func BuildPostgresDSN() string {
	host := sharedcfg.EnvOrDefault("PG_HOST", "localhost")
	port := sharedcfg.EnvOrDefault("PG_PORT", "5432")
	user := sharedcfg.EnvOrDefault("PG_USER", "postgres")
	pass := os.Getenv("PG_PASSWORD")
	db := sharedcfg.EnvOrDefault("PG_DB", "cognicity")
	ssl := sharedcfg.EnvOrDefault("PG_SSLMODE", "disable")

	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	return dsn + "@" + host + ":" + port + "/" + db + "?sslmode=" + ssl
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseInt(name string, def, minimum int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func parseBool(name string, def bool) bool {
	if v := os.Getenv(name); v != "" {
		return v == "true"
	}
	return def
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
