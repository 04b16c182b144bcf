package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

const sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"

type dialect struct {
	driver    string
	dialector gorm.Dialector
}

func dialectorFor(cfg Config) (dialect, error) {
	switch normalizeDriver(cfg.Driver) {
	case driverSQLite:
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return dialect{}, err
		}
		return dialect{driver: driverSQLite, dialector: sqlite.Open(dsn)}, nil
	case driverPostgres:
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return dialect{}, err
		}
		return dialect{driver: driverPostgres, dialector: postgres.Open(dsn)}, nil
	case driverMySQL:
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return dialect{}, err
		}
		return dialect{driver: driverMySQL, dialector: mysql.Open(dsn)}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", "sqlite3":
		return driverSQLite
	case "postgresql", "pg":
		return driverPostgres
	default:
		return d
	}
}

// sqliteDSN uses an in-memory database when no path is configured and
// creates the parent directory of a file database.
func sqliteDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL", nil
}

func postgresDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := map[string]string{"sslmode": "disable"}
	for key, value := range cfg.Options {
		params[key] = value
	}
	params["host"] = withDefault(cfg.Host, "localhost")
	params["port"] = fmt.Sprint(withDefaultPort(cfg.Port, 5432))
	params["user"] = cfg.User
	params["dbname"] = cfg.Name
	if cfg.Password != "" {
		params["password"] = cfg.Password
	}
	return joinSorted(params, " "), nil
}

func mysqlDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	params := map[string]string{"charset": "utf8mb4", "parseTime": "True", "loc": "UTC"}
	for key, value := range cfg.Options {
		params[key] = value
	}

	credentials := cfg.User
	if cfg.Password != "" {
		credentials += ":" + cfg.Password
	}
	address := fmt.Sprintf("%s:%d", withDefault(cfg.Host, "127.0.0.1"), withDefaultPort(cfg.Port, 3306))
	return fmt.Sprintf("%s@tcp(%s)/%s?%s", credentials, address, cfg.Name, joinSorted(params, "&")), nil
}

func joinSorted(params map[string]string, sep string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+params[key])
	}
	return strings.Join(parts, sep)
}

func withDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func withDefaultPort(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
