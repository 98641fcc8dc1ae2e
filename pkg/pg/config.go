package pg

import "time"

type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`                   // ConnectionString is the connection string to the database.
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the maximum number of open connections to the database.
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the number of connections kept open when idle.
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // HealthCheckPeriod is the period between health checks.
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // MaxConnIdleTime is the maximum amount of time a connection may be idle to be reused.
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // MaxConnLifetime is the maximum amount of time a connection may be reused.

	RetryAttempts uint64        `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // RetryAttempts is the number of retries after the first failed attempt.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"1s"` // RetryInterval is the first backoff delay; later delays double.

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"scanauth_migrations"` // MigrationsTable stores the applied migration versions.
}
