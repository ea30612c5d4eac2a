// Package main is specmigrate, which applies the catalog index schema to PostgreSQL.
//
// The SQL files in this directory are compiled into the binary, so the tool
// needs nothing but DATABASE_URL at deploy time.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/config"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	name      = "specmigrate"
)

func main() {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	showHelp := flags.Bool("help", false, "Show help information")
	showVersion := flags.Bool("version", false, "Show version information")
	assumeYes := flags.Bool("yes", false, "Do not ask for confirmation before drop")
	flags.Usage = func() { printUsage(os.Stderr) }

	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		printVersionInfo(os.Stdout)

		return
	}

	if *showHelp || flags.NArg() == 0 {
		printUsage(os.Stdout)

		return
	}

	logger := config.NewLogger()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := NewRunner(context.Background(), cfg, NewSource(nil), logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = executeCommand(flags.Arg(0), runner, confirmer(*assumeYes, os.Stdin, os.Stdout), os.Stdout)

	if closeErr := runner.Close(); closeErr != nil {
		logger.Warn("Failed to close migration runner", slog.String("error", closeErr.Error()))
	}

	if err != nil {
		logger.Error("Migration failed", slog.String("command", flags.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// executeCommand runs one CLI command against runner. confirm gates drop.
func executeCommand(command string, runner MigrationRunner, confirm func(string) bool, out io.Writer) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status", "version":
		status, err := runner.Status()
		if err != nil {
			return err
		}

		printStatus(out, status)

		return nil
	case "drop":
		if !confirm("This drops every catalog table. Continue? (y/N): ") {
			_, _ = fmt.Fprintln(out, "Operation cancelled.")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// confirmer asks on in unless assumeYes is set.
func confirmer(assumeYes bool, in io.Reader, out io.Writer) func(string) bool {
	return func(prompt string) bool {
		if assumeYes {
			return true
		}

		_, _ = fmt.Fprint(out, prompt)

		answer, _ := bufio.NewReader(in).ReadString('\n')

		return strings.EqualFold(strings.TrimSpace(answer), "y")
	}
}

func printStatus(out io.Writer, s Status) {
	state := "clean"
	if s.Dirty {
		state = "dirty (needs manual intervention)"
	}

	_, _ = fmt.Fprintf(out, "Database schema:    v%03d (%s)\n", s.Current, state)
	_, _ = fmt.Fprintf(out, "Migrator supports:  v%03d\n", s.Latest)

	switch {
	case s.Ahead():
		_, _ = fmt.Fprintf(out, "Status: database is newer than this migrator, upgrade %s\n", name)
	case s.Pending() > 0:
		_, _ = fmt.Fprintf(out, "Status: %d migration(s) pending, run '%s up'\n", s.Pending(), name)
	default:
		_, _ = fmt.Fprintln(out, "Status: up to date")
	}
}

func printVersionInfo(out io.Writer) {
	_, _ = fmt.Fprintf(out, "%s v%s\nGit Commit: %s\nBuild Time: %s\n", name, Version, GitCommit, BuildTime)
}

func printUsage(out io.Writer) {
	_, _ = fmt.Fprintf(out, `%[1]s v%[2]s - catalog index schema migrations

USAGE:
    %[1]s [OPTIONS] COMMAND

COMMANDS:
    up       Apply all pending migrations
    down     Roll back the last migration
    status   Show the applied and available schema versions
    version  Alias of status
    drop     Drop all tables (asks for confirmation unless --yes)

OPTIONS:
    --help     Show this help message
    --version  Show version information
    --yes      Skip the drop confirmation

ENVIRONMENT VARIABLES:
    DATABASE_URL                 PostgreSQL connection string (required)
    SPECVIEWER_MIGRATION_TABLE   Migration tracking table (default: schema_migrations)
    SPECVIEWER_LOG_LEVEL         debug, info, warn or error (default: info)
`, name, Version)
}
