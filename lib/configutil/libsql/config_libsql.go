package configlibsql

import (
	"database/sql"
	"fmt"
	"net/url"

	devenv "parkpro-backend/dev/env"
	"parkpro-backend/pkg/migrations"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Struct selects either a local sqlite file or a remote libsql (turso) database.
// If `url` is set, it takes priority over `file`.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) remoteDSN() (string, error) {
	dsn, err := url.Parse(config.Url)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if config.AuthToken != "" {
		query := dsn.Query()
		query.Set("authToken", config.AuthToken)
		dsn.RawQuery = query.Encode()
	}
	return dsn.String(), nil
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		dsn, err := config.remoteDSN()
		if err != nil {
			return nil, err
		}
		return sql.Open("libsql", dsn)
	}

	if config.File == "" {
		return nil, fmt.Errorf("neither a database url nor a file path was specified")
	}
	dbpath, err := devenv.ResolvePath(config.File)
	if err != nil {
		return nil, err
	}
	return migrations.OpenDB(dbpath)
}
