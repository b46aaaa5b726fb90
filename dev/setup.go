package main

import (
	"fmt"
	"os"
	"path/filepath"

	devenv "parkpro-backend/dev/env"
	"parkpro-backend/internal/db"
	"parkpro-backend/pkg/migrations"
)

func CreateStateDB() error {
	dbpath, err := devenv.ResolvePath(filepath.Join("<dev_state>", "parkpro.db"))
	if err != nil {
		return err
	}

	_, err = os.Stat(dbpath)
	if err == nil {
		fmt.Println("database already created at", dbpath)
		return nil
	}

	fmt.Println("creating database at", dbpath)
	sqlite, err := migrations.OpenAndMigrateDB(db.Schema, dbpath)
	if err != nil {
		return err
	}
	return sqlite.Close()
}

const localConfigTemplate = `{
  // generate one with: openssl rand -hex 32
  secret: "dev-secret-change-me",
  database: {
    file: "<dev_state>/parkpro.db",
  },
  sniper: {
    interval_seconds: 5,
  },
}
`

func WriteLocalConfig() error {
	_, err := os.Stat("config.local.json5")
	if err == nil {
		fmt.Println("config.local.json5 already exists, leaving it alone")
		return nil
	}
	return os.WriteFile("config.local.json5", []byte(localConfigTemplate), 0600)
}
