package database

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/smukkama/device-etl/internal/retry"
)

const (
	// DriverPostgres is the driver name registered by lib/pq
	DriverPostgres = "postgres"

	// DriverMySQL is the driver name registered by go-sql-driver/mysql
	DriverMySQL = "mysql"
)

// DB wraps the database connection
type DB struct {
	*sqlx.DB
}

// Open creates the connection pool without contacting the server
func Open(driver, dsn string) (*DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Connect opens the pool and waits until the server answers a ping, retrying
// according to the retrier's policy
func Connect(ctx context.Context, driver, dsn string, r *retry.Retrier) (*DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	err = r.Do(ctx, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return db, nil
}

// PostgresDSN accepts lib/pq keyword strings and postgres URLs, including
// SQLAlchemy style schemes such as postgresql+psycopg2://
func PostgresDSN(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	return scheme + "://" + rest
}

// MySQLDSN converts a mysql:// (or mysql+driver://) URL into the DSN format
// expected by go-sql-driver/mysql. Native DSNs are returned unchanged.
func MySQLDSN(raw string) (string, error) {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		if _, err := mysql.ParseDSN(raw); err != nil {
			return "", errors.Wrap(err, "invalid mysql dsn")
		}
		return raw, nil
	}

	if base, _, _ := strings.Cut(scheme, "+"); base != "mysql" && base != "mariadb" {
		return "", errors.Errorf("unsupported mysql url scheme %q", scheme)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql url")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	query := u.Query()
	if len(query) > 0 {
		cfg.Params = make(map[string]string, len(query))
		for k := range query {
			cfg.Params[k] = query.Get(k)
		}
	}

	return cfg.FormatDSN(), nil
}
