package database

import (
	"fmt"
	"net/url"

	"github.com/sifan077/InviteGate/config"
)

type connParts struct {
	host     string
	port     int
	user     string
	password string
	database string
	sslMode  string
}

// ConnString renders the postgres URL used by the gorm postgres driver.
func ConnString(cfg config.PostgresConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return buildConnString(connParts{
		host:     host,
		port:     port,
		user:     cfg.User,
		password: cfg.Password,
		database: cfg.Database,
		sslMode:  sslMode,
	})
}

func buildConnString(parts connParts) string {
	credentials := url.PathEscape(parts.user)
	if parts.password != "" {
		credentials = fmt.Sprintf("%s:%s", credentials, url.PathEscape(parts.password))
	}

	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		credentials,
		parts.host,
		parts.port,
		url.PathEscape(parts.database),
		parts.sslMode,
	)
}
