package crs

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/wrg-explorer/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Both proj.db and the bundled schema expose crs_view with these columns.
const listQuery = `
	SELECT auth_name, code, name, type, deprecated
	FROM crs_view
	ORDER BY auth_name, CAST(code AS INTEGER), code`

// DB is a SQLite database holding CRS definitions.
type DB struct {
	*sql.DB
	label string
}

// OpenProjDB opens a PROJ proj.db read-only.
func OpenProjDB(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("proj database: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open proj database %s: %w", path, err)
	}
	return &DB{DB: db, label: "PROJ database"}, nil
}

// OpenBundled opens (creating when needed) the bundled catalogue at path,
// migrates its schema and seeds it with the built-in entries when empty.
// An empty path keeps the catalogue in memory.
func OpenBundled(path string) (*DB, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == "" {
		// Every connection to ":memory:" is a separate database.
		sqldb.SetMaxOpenConns(1)
	}
	db := &DB{DB: sqldb, label: "Bundled CRS catalogue"}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	if err := db.seed(bundledEntries()); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp applies all pending schema migrations.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

func (db *DB) seed(entries []Entry) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM crs_entries`).Scan(&n); err != nil {
		return fmt.Errorf("count crs entries: %w", err)
	}
	if n > 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO crs_entries (auth_name, code, name, type, deprecated) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.AuthName, e.Code, e.Name, string(e.Type), e.Deprecated); err != nil {
			return fmt.Errorf("insert %s: %w", e.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Logf("seeded crs catalogue with %d entries", len(entries))
	return nil
}

// Load reads every entry.
func (db *DB) Load(ctx context.Context) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			typ        string
			deprecated bool
		)
		if err := rows.Scan(&e.AuthName, &e.Code, &e.Name, &typ, &deprecated); err != nil {
			return nil, err
		}
		e.Type = Type(typ)
		e.Deprecated = deprecated
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// AttachAdminRoutes mounts a tailsql browser over the catalogue under
// /debug/tailsql/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://crs.db", db.DB, &tailsql.DBOptions{
		Label: db.label,
	})
	debug.Handle("tailsql/", "CRS catalogue SQL browser", tsql.NewMux())
	return nil
}
