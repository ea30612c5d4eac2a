package main

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration file names: 001_catalog_index.up.sql and 001_catalog_index.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.(up|down)\.sql$`)

var (
	ErrNoMigrations      = errors.New("no migration files found")
	ErrInvalidFilename   = errors.New("invalid migration filename")
	ErrUnpairedMigration = errors.New("migration is missing its up or down file")
	ErrSequenceGap       = errors.New("gap in migration sequence")
	ErrChecksumMismatch  = errors.New("migration file changed since it was validated")
)

// Migration is one up/down pair.
type Migration struct {
	Version  int
	Name     string
	Up       string
	Down     string
	Checksum string
}

// Source validates and lists the migration files of a file system.
// Checksums recorded by the first successful Load are enforced on later ones,
// so a file edited while the migrator runs is refused.
type Source struct {
	fsys      fs.FS
	checksums map[string]string
}

// NewSource wraps fsys. A nil fsys selects the migrations compiled into the binary.
func NewSource(fsys fs.FS) *Source {
	if fsys == nil {
		fsys = embeddedMigrations
	}

	return &Source{fsys: fsys, checksums: make(map[string]string)}
}

// FS returns the underlying file system for golang-migrate's iofs driver.
func (s *Source) FS() fs.FS {
	return s.fsys
}

// Load parses every .sql file and returns the migrations in version order.
// Files that are not .sql are ignored. Any .sql file with a malformed name is an error.
func (s *Source) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isSQL(name) {
			continue
		}

		parts := migrationFilenameRegex.FindStringSubmatch(name)
		if parts == nil {
			return nil, fmt.Errorf("%w: %s (expected 001_name.up.sql or 001_name.down.sql)", ErrInvalidFilename, name)
		}

		version, _ := strconv.Atoi(parts[1])

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}

		if m.Name != parts[2] {
			return nil, fmt.Errorf("%w: %s and %s share version %03d", ErrInvalidFilename, m.Name, parts[2], version)
		}

		if parts[3] == "up" {
			m.Up = name
		} else {
			m.Down = name
		}
	}

	if len(byVersion) == 0 {
		return nil, ErrNoMigrations
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	for i := range migrations {
		m := &migrations[i]

		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("%w: %03d_%s", ErrUnpairedMigration, m.Version, m.Name)
		}

		if m.Version != i+1 {
			return nil, fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, i+1, m.Version)
		}

		if m.Checksum, err = s.checksum(m.Up, m.Down); err != nil {
			return nil, err
		}
	}

	return migrations, nil
}

// Latest returns the highest version in the source.
func (s *Source) Latest() (int, error) {
	migrations, err := s.Load()
	if err != nil {
		return 0, err
	}

	return migrations[len(migrations)-1].Version, nil
}

func (s *Source) checksum(files ...string) (string, error) {
	hash := sha256.New()

	for _, file := range files {
		content, err := fs.ReadFile(s.fsys, file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}

		sum := sha256.Sum256(content)
		if previous, ok := s.checksums[file]; ok && previous != hex.EncodeToString(sum[:]) {
			return "", fmt.Errorf("%w: %s", ErrChecksumMismatch, file)
		}

		s.checksums[file] = hex.EncodeToString(sum[:])
		hash.Write(content)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func isSQL(name string) bool {
	return len(name) > 4 && name[len(name)-4:] == ".sql"
}
