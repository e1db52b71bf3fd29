package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// BuildMigrateURL builds a golang-migrate database URL for dbPath.
// Windows drive paths get the extra leading slash the URL form needs.
func BuildMigrateURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	urlPath := filepath.ToSlash(absPath)
	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "sqlite://" + urlPath, nil
}

// ApplyMigrationsFromFS applies all migrations under dirName in fsys to
// the database at dbPath. Safe to call repeatedly; an already migrated
// database is not an error.
func ApplyMigrationsFromFS(dbPath string, fsys fs.FS, dirName string) error {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, dirName)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied migration version. A database
// with no applied migrations reports version 0 without error.
func MigrationVersion(dbPath string, fsys fs.FS, dirName string) (uint, bool, error) {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return 0, false, err
	}

	src, err := iofs.New(fsys, dirName)
	if err != nil {
		return 0, false, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return 0, false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}
