package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
)

const defaultGetTimeout = 2 * time.Minute

func newURLCmd(a *app) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "url FIELD MJD OBJECT",
		Short: "Print the URLs a search would try, in order",
		Example: `  specfetch url 101126 60477 63050394846126565
  specfetch url 3606 55182 42 --branch legacy`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine(nil, nil)
			if err != nil {
				return err
			}

			candidates, err := engine.Candidates(args[0], args[1], args[2], branch)
			if err != nil {
				return err
			}

			for _, c := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", c.Branch, c.URL)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "reduction branch, or master/legacy for a candidate list")

	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var (
		mjd      string
		branch   string
		extras   []string
		crossRef bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "get FIELD OBJECT",
		Short: "Aggregate the spectra of an object and print the bundle as JSON",
		Long: `Aggregate the spectra of an object and print the bundle as JSON.

FIELD is a field number (with --mjd), "all" for every indexed epoch plus the
all-epoch stacks, or one of allepoch, allepoch_apo and allepoch_lco.`,
		Example: `  specfetch get 101126 63050394846126565 --mjd 60477
  specfetch get all 4350951054 --crossref
  specfetch get 15171 4350951054 --mjd 59281 --extra 15172-59290-4350951054`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			fetcher, err := a.newFetcher(ctx)
			if err != nil {
				return err
			}

			index, closer := a.optionalIndex()
			defer func() {
				_ = closer.Close()
			}()

			engine, err := a.engine(fetcher, index)
			if err != nil {
				return err
			}

			bundle, err := engine.Aggregate(ctx, retrieval.Request{
				Field:    args[0],
				MJD:      mjd,
				Object:   args[1],
				Extras:   strings.Join(extras, ","),
				CrossRef: crossRef,
				Branch:   branch,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			return encoder.Encode(bundle)
		},
	}

	cmd.Flags().StringVar(&mjd, "mjd", "", "MJD of the epoch; required for a numbered field")
	cmd.Flags().StringVar(&branch, "branch", "", "preferred reduction branch")
	cmd.Flags().StringSliceVar(&extras, "extra", nil, "comparison spectrum FIELD-MJD-OBJECT[@BRANCH], repeatable")
	cmd.Flags().BoolVar(&crossRef, "crossref", false, "include epochs of linked catalog IDs")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultGetTimeout, "overall deadline")

	return cmd
}

// engine builds an aggregation engine without metrics.
func (a *app) engine(fetcher fetch.Fetcher, index catalog.Index) (*retrieval.Engine, error) {
	settings, err := a.settings()
	if err != nil {
		return nil, err
	}

	return retrieval.NewEngine(retrieval.LoadConfig(), settings, fetcher, index, nil, a.logger)
}

// optionalIndex opens the catalog index, or returns none when it is not available.
func (a *app) optionalIndex() (catalog.Index, io.Closer) {
	index, closer, err := a.openIndex()
	if err != nil {
		a.logger.Info("Catalog index unavailable, only pinned identifiers resolve",
			slog.String("error", err.Error()))

		return nil, nopCloser{}
	}

	return index, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
