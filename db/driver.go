package db

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Driver interface
// ─────────────────────────────────────────────────────────────────────────────

// Driver encapsulates database-specific behaviour:
//   - building a DSN from structured options
//   - providing a driver-specific ErrorMapper
//   - naming the SQL dialect
//
// The database/sql drivers themselves are registered by this package's
// imports; a Driver only describes how to talk to one.
type Driver interface {
	// Name returns the name the driver is registered under, e.g. "pgx".
	Name() string

	// DSN converts structured options into a driver DSN string.
	DSN(opts DriverOptions) (string, error)

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper

	// Dialect returns the SQL dialect spoken through this driver.
	Dialect() Dialect
}

// DriverOptions carries the most common connection parameters in a structured,
// driver-agnostic form. DSN() converts them to the driver's native format.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-full", etc.
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the registry. It panics if the name is
// taken; use ReplaceDriver to override a built-in adapter.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("blogstore/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// ReplaceDriver upserts a driver in the registry.
func ReplaceDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name or an error.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("blogstore/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver opens a DB using a registered Driver and structured options.
//
//	d, err := db.OpenWithDriver("pgx", db.DriverOptions{
//	    Host: "localhost", Port: 5432,
//	    User: "app", Password: "secret", Database: "blog",
//	}, db.Config{MaxOpenConns: 25})
func OpenWithDriver(driverName string, driverOpts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	dsn, err := drv.DSN(driverOpts)
	if err != nil {
		return nil, fmt.Errorf("blogstore/db: DSN construction failed: %w", err)
	}

	cfg.DriverName = drv.Name()
	cfg.DSN = dsn

	d, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	d.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return d, nil
}

func init() {
	RegisterDriver(PostgresDriver{})
	RegisterDriver(PgxDriver{})
	RegisterDriver(MySQLDriver{})
	RegisterDriver(SQLiteDriver{})
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL via lib/pq
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver is the lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string             { return "postgres" }
func (PostgresDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapPQError) }
func (PostgresDriver) Dialect() Dialect         { return postgresDialect{} }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	u, err := postgresURL(o)
	if err != nil {
		return "", fmt.Errorf("postgres driver: %w", err)
	}
	return u, nil
}

func mapPQError(err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return err
	}
	return mapByPGCode(string(pe.Code), pe.Constraint, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL via pgx (database/sql bridge)
// ─────────────────────────────────────────────────────────────────────────────

// PgxDriver is the jackc/pgx stdlib adapter.
type PgxDriver struct{}

func (PgxDriver) Name() string             { return "pgx" }
func (PgxDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapPGXError) }
func (PgxDriver) Dialect() Dialect         { return postgresDialect{} }

func (PgxDriver) DSN(o DriverOptions) (string, error) {
	u, err := postgresURL(o)
	if err != nil {
		return "", fmt.Errorf("pgx driver: %w", err)
	}
	return u, nil
}

func mapPGXError(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return mapByPGCode(pe.Code, pe.ConstraintName, err)
	}
	if pgconn.Timeout(err) {
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	}
	var ce *pgconn.ConnectError
	if errors.As(err, &ce) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return err
}

// postgresURL builds a postgres:// URL understood by both lib/pq and pgx.
func postgresURL(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("host and database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(o.Host, strconv.Itoa(port)),
		Path:     "/" + o.Database,
		RawQuery: q.Encode(),
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	return u.String(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the go-sql-driver/mysql adapter.
type MySQLDriver struct{}

func (MySQLDriver) Name() string             { return "mysql" }
func (MySQLDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapMySQLError) }
func (MySQLDriver) Dialect() Dialect         { return mysqlDialect{} }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	cfg.DBName = o.Database
	cfg.ParseTime = true
	if len(o.Extra) > 0 {
		cfg.Params = make(map[string]string, len(o.Extra))
		for k, v := range o.Extra {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}

func mapMySQLError(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	var sentinel error
	switch me.Number {
	case 1062: // ER_DUP_ENTRY
		sentinel = ErrDuplicateKey
	case 1452, 1451, 1216, 1217: // ER_NO_REFERENCED_ROW_2, ER_ROW_IS_REFERENCED_2, legacy
		sentinel = ErrForeignKeyViolation
	case 1048: // ER_BAD_NULL_ERROR
		sentinel = ErrNotNullViolation
	case 3819: // ER_CHECK_CONSTRAINT_VIOLATED
		sentinel = ErrCheckViolation
	case 1213, 1205: // ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		sentinel = ErrDeadlock
	case 3024: // ER_QUERY_TIMEOUT
		sentinel = ErrTimeout
	case 1045, 2002, 2003, 2006, 2013:
		sentinel = ErrConnectionFailed
	default:
		return err
	}
	return &DBError{Sentinel: sentinel, Cause: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the mattn/go-sqlite3 adapter. Foreign keys are enabled by
// default since SQLite ships with them off.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string             { return "sqlite3" }
func (SQLiteDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapSQLiteError) }
func (SQLiteDriver) Dialect() Dialect         { return sqliteDialect{} }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	return "file:" + o.Database + "?" + q.Encode(), nil
}

func mapSQLiteError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	var sentinel error
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		sentinel = ErrDuplicateKey
	case sqlite3.ErrConstraintForeignKey:
		sentinel = ErrForeignKeyViolation
	case sqlite3.ErrConstraintNotNull:
		sentinel = ErrNotNullViolation
	case sqlite3.ErrConstraintCheck:
		sentinel = ErrCheckViolation
	default:
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			sentinel = ErrDeadlock
		case sqlite3.ErrCantOpen:
			sentinel = ErrConnectionFailed
		default:
			return err
		}
	}
	return &DBError{Sentinel: sentinel, Cause: err}
}
