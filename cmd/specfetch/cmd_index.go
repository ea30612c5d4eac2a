package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the catalog index",
	}

	cmd.AddCommand(newIndexImportCmd(a), newIndexProgramsCmd(a))

	return cmd
}

func newIndexImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the PostgreSQL catalog index with a dictionaries file",
		Long: `Replace the PostgreSQL catalog index with the contents of a dictionaries file.

The database is read from DATABASE_URL and must have been migrated with
specmigrate. The import runs in one transaction.`,
		Example: "  DATABASE_URL=postgres://... specfetch index import dictionaries.txt",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := catalog.ReadFile(args[0])
			if err != nil {
				return err
			}

			dbConfig := storage.LoadConfig()
			if err := dbConfig.Validate(); err != nil {
				return err
			}

			conn, err := storage.NewConnection(dbConfig)
			if err != nil {
				return err
			}

			defer func() {
				_ = conn.Close()
			}()

			index, err := catalog.NewPostgresIndex(conn, a.logger)
			if err != nil {
				return err
			}

			stats, err := index.Import(cmd.Context(), d)
			if err != nil {
				return err
			}

			a.logger.Info("Catalog index imported",
				slog.String("file", args[0]),
				slog.String("database_url", dbConfig.MaskDatabaseURL()),
			)

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d programs, %d fields, %d epochs, %d links\n",
				stats.Programs, stats.Fields, stats.Epochs, stats.Links)

			return nil
		},
	}
}

func newIndexProgramsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the programs and field counts of the configured index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, closer, err := a.openIndex()
			if err != nil {
				return err
			}

			defer func() {
				_ = closer.Close()
			}()

			programs, err := index.Programs(cmd.Context())
			if err != nil {
				return err
			}

			for _, program := range programs {
				fields, err := index.Fields(cmd.Context(), program)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d fields\n", program, len(fields))
			}

			return nil
		},
	}
}
