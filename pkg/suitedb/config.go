package suitedb

import (
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type Config struct {
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"`
	DSN      string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     string `json:"port" yaml:"port" mapstructure:"port"`
	User     string `json:"user" yaml:"user" mapstructure:"user"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" yaml:"sslmode" mapstructure:"sslmode"`
}

func (cfg Config) Dialect() (Dialect, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = Postgres.Driver
	}
	return DialectFor(driver)
}

// ConnString returns the driver specific data source name. An explicit DSN
// takes precedence over the individual connection parameters.
func (cfg Config) ConnString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	dialect, err := cfg.Dialect()
	if err != nil {
		return ""
	}

	switch dialect.Driver {
	case MySQL.Driver:
		return cfg.mysqlConnString()
	case SQLite.Driver:
		return cfg.Database
	default:
		return cfg.postgresConnString()
	}
}

func (cfg Config) postgresConnString() string {
	if cfg.Host == "" {
		return ""
	}

	params := map[string]string{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"user":     cfg.User,
		"password": cfg.Password,
		"dbname":   cfg.Database,
		"sslmode":  cfg.SSLMode,
	}

	var parts []string
	for _, key := range slices.Sorted(maps.Keys(params)) {
		if value := params[key]; value != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, value))
		}
	}
	return strings.Join(parts, " ")
}

func (cfg Config) mysqlConnString() string {
	if cfg.Host == "" {
		return ""
	}

	port := cfg.Port
	if port == "" {
		port = "3306"
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, port)
	mc.DBName = cfg.Database
	if cfg.SSLMode != "" && cfg.SSLMode != "disable" {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

// Open opens a database handle for the configured store. The connection is
// not verified.
func Open(cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, dialect, err
	}

	connstr := cfg.ConnString()
	if connstr == "" {
		return nil, dialect, errors.New("No DB endpoint configured")
	}

	db, err := sql.Open(dialect.Driver, connstr)
	if err != nil {
		return nil, dialect, err
	}
	return db, dialect, nil
}
