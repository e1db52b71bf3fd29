package pg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSNConfig holds the parts of a PostgreSQL connection string.
type DSNConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// ApplicationName shows up in PostgreSQL logs and pg_stat_activity.
	ApplicationName string
	ConnectTimeout  int
}

// BuildDSN renders the config as a postgres:// URL. Empty host, port
// and sslmode fall back to localhost, 5432 and disable.
func BuildDSN(config DSNConfig) string {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	var dsn strings.Builder
	dsn.WriteString("postgres://")
	if config.User != "" {
		dsn.WriteString(url.QueryEscape(config.User))
		if config.Password != "" {
			dsn.WriteString(":")
			dsn.WriteString(url.QueryEscape(config.Password))
		}
		dsn.WriteString("@")
	}
	dsn.WriteString(config.Host)
	dsn.WriteString(":")
	dsn.WriteString(strconv.Itoa(config.Port))
	if config.Database != "" {
		dsn.WriteString("/")
		dsn.WriteString(url.QueryEscape(config.Database))
	}

	params := url.Values{}
	params.Set("sslmode", config.SSLMode)
	if config.ApplicationName != "" {
		params.Set("application_name", config.ApplicationName)
	}
	if config.ConnectTimeout > 0 {
		params.Set("connect_timeout", strconv.Itoa(config.ConnectTimeout))
	}

	dsn.WriteString("?")
	dsn.WriteString(params.Encode())
	return dsn.String()
}

// ParseDSN splits a postgres:// URL back into a DSNConfig.
func ParseDSN(dsn string) (DSNConfig, error) {
	var config DSNConfig

	u, err := url.Parse(dsn)
	if err != nil {
		return config, fmt.Errorf("invalid DSN format: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return config, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, err = strconv.Atoi(u.Port())
		if err != nil {
			return config, fmt.Errorf("invalid port: %s", u.Port())
		}
	} else {
		config.Port = 5432
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}
	if u.Path != "" && u.Path != "/" {
		config.Database = strings.TrimPrefix(u.Path, "/")
	}

	query := u.Query()
	config.SSLMode = query.Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	config.ApplicationName = query.Get("application_name")
	if v := query.Get("connect_timeout"); v != "" {
		config.ConnectTimeout, _ = strconv.Atoi(v)
	}

	return config, nil
}
