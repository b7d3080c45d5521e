// Package database is the live-database collaborator of the chat pipeline:
// it owns the connection pool, runs statements and describes the schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverDuckDB   = "duckdb"
)

// Descriptor identifies a database the way a user types it into a
// connection form. For sqlite and duckdb, Name is the database file path.
type Descriptor struct {
	Driver   string
	User     string
	Password string
	Host     string
	Port     int
	Name     string
	Params   string
}

type DBConfig struct {
	Descriptor       Descriptor
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	SchemaSampleRows int
}

type DB struct {
	db         *sql.DB
	driver     string
	sampleRows int
}

func Open(ctx context.Context, cfg DBConfig) (*DB, error) {
	driverName, dsn, err := cfg.Descriptor.DSN()
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Descriptor.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Descriptor.Driver, err)
	}

	return New(sqlDB, cfg.Descriptor.Driver, cfg.SchemaSampleRows), nil
}

// New wraps an already opened pool. driver selects the introspection dialect.
func New(db *sql.DB, driver string, sampleRows int) *DB {
	if sampleRows < 0 {
		sampleRows = 0
	}
	return &DB{db: db, driver: strings.ToLower(strings.TrimSpace(driver)), sampleRows: sampleRows}
}

func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s db: %w", d.driver, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// DSN returns the database/sql driver name and data source for d.
func (d Descriptor) DSN() (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case DriverMySQL:
		return d.mysqlDSN()
	case DriverPostgres:
		return d.postgresDSN()
	case DriverSQLite:
		return "sqlite", withParams(d.Name, d.Params), nil
	case DriverDuckDB:
		return "duckdb", withParams(d.Name, d.Params), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}
}

func (d Descriptor) mysqlDSN() (string, string, error) {
	if err := d.requireNetworkFields(); err != nil {
		return "", "", err
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = d.hostPort(3306)
	cfg.DBName = d.Name
	cfg.ParseTime = true
	if strings.TrimSpace(d.Params) != "" {
		values, err := url.ParseQuery(d.Params)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql params: %w", err)
		}
		cfg.Params = make(map[string]string, len(values))
		for key := range values {
			cfg.Params[key] = values.Get(key)
		}
	}
	return "mysql", cfg.FormatDSN(), nil
}

func (d Descriptor) postgresDSN() (string, string, error) {
	if err := d.requireNetworkFields(); err != nil {
		return "", "", err
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.hostPort(5432),
		Path:     "/" + d.Name,
		RawQuery: strings.TrimSpace(d.Params),
	}
	return "pgx", u.String(), nil
}

func (d Descriptor) requireNetworkFields() error {
	if strings.TrimSpace(d.Host) == "" {
		return fmt.Errorf("database host is required")
	}
	if strings.TrimSpace(d.User) == "" {
		return fmt.Errorf("database user is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("database name is required")
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("invalid database port %d", d.Port)
	}
	return nil
}

func (d Descriptor) hostPort(defaultPort int) string {
	port := d.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(strings.TrimSpace(d.Host), strconv.Itoa(port))
}

func withParams(name, params string) string {
	params = strings.TrimSpace(params)
	if params == "" {
		return name
	}
	return name + "?" + params
}
