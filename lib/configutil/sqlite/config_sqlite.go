package configsqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Struct points at the history database. File paths get the embedded
// sqlite driver; libsql:// urls go to a remote turso instance.
type Struct struct {
	File string `json:"file"`
	Url  string `json:"url"`
}

func (config Struct) OpenDB(schema string) (*sql.DB, error) {
	if config.Url != "" {
		db, err := sql.Open("libsql", config.Url)
		if err != nil {
			return nil, err
		}
		return initDB(db, schema)
	}

	if config.File == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}

	_, statErr := os.Stat(config.File)
	if os.IsNotExist(statErr) {
		err := os.MkdirAll(filepath.Dir(config.File), 0o755)
		if err != nil {
			return nil, err
		}
		f, err := os.Create(config.File)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	return initDB(db, schema)
}

func initDB(db *sql.DB, schema string) (*sql.DB, error) {
	_, err := db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, err
	}
	return db, nil
}
