package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/config"
	"github.com/bhm-spectra/specviewer/internal/credentials"
	"github.com/bhm-spectra/specviewer/internal/fetch"
)

// app carries the streams and collaborators of one invocation. Tests replace
// newFetcher and openIndex to stay off the network.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	newFetcher func(ctx context.Context) (fetch.Fetcher, error)
	openIndex  func() (catalog.Index, io.Closer, error)
	settings   func() (*archive.Settings, error)
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		in:     in,
		out:    out,
		errOut: errOut,
		logger: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("SPECVIEWER_LOG_LEVEL", slog.LevelWarn),
		})),
		settings: archive.LoadSettingsFromEnv,
	}

	a.newFetcher = a.archiveFetcher
	a.openIndex = func() (catalog.Index, io.Closer, error) {
		return catalog.Open(catalog.LoadConfig(), a.logger)
	}

	return a
}

// archiveFetcher is the production transport. Credentials are read (or
// prompted for) only when a command actually downloads something.
func (a *app) archiveFetcher(_ context.Context) (fetch.Fetcher, error) {
	cfg := fetch.LoadConfig()

	var creds fetch.CredentialProvider

	store, err := credentials.Load(credentials.LoadConfig(), a.in, a.errOut, a.logger)
	if err != nil {
		a.logger.Warn("Archive credentials unavailable, reading public releases only",
			slog.String("error", err.Error()))
	} else {
		creds = store
	}

	transport, err := fetch.NewHTTPFetcher(cfg, nil, creds, nil, a.logger)
	if err != nil {
		return nil, err
	}

	return fetch.NewMemo(transport, cfg.MemoSize), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "specfetch",
		Short:         "Resolve and download SDSS spectra",
		Long:          "specfetch resolves SDSS object identifiers to archive spectra across reduction branches.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(
		newURLCmd(a),
		newGetCmd(a),
		newIndexCmd(a),
		newAPIKeyCmd(a),
	)

	return root
}
