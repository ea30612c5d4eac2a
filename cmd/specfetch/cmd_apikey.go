package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bhm-spectra/specviewer/internal/storage"
)

// ErrKeyFileNotConfigured is returned when SPECVIEWER_API_KEYS_FILE is unset.
var ErrKeyFileNotConfigured = errors.New("SPECVIEWER_API_KEYS_FILE is not set")

func newAPIKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage relay API keys",
	}

	cmd.AddCommand(newAPIKeyGenerateCmd(a), newAPIKeyListCmd(a))

	return cmd
}

func openKeyFile(a *app) (*storage.FileKeyStore, error) {
	cfg := storage.LoadKeyStoreConfig()
	if !cfg.Enabled() {
		return nil, ErrKeyFileNotConfigured
	}

	return storage.OpenFileKeyStore(cfg.Path, a.logger)
}

func newAPIKeyGenerateCmd(a *app) *cobra.Command {
	var (
		name        string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate CLIENT",
		Short: "Mint an API key for a relay client",
		Long: `Mint an API key for a relay client.

Only a bcrypt hash is stored in SPECVIEWER_API_KEYS_FILE. The key itself is
printed once and cannot be recovered.`,
		Example: "  specfetch apikey generate bhm-dashboard --name 'BHM dashboard' --permission spectra:read",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyFile(a)
			if err != nil {
				return err
			}

			key, err := storage.GenerateAPIKey(args[0])
			if err != nil {
				return err
			}

			apiKey := &storage.APIKey{
				ID:          uuid.NewString(),
				Key:         key,
				ClientID:    args[0],
				Name:        name,
				Permissions: permissions,
				CreatedAt:   time.Now().UTC(),
				Active:      true,
			}

			if ttl > 0 {
				expires := apiKey.CreatedAt.Add(ttl)
				apiKey.ExpiresAt = &expires
			}

			if err := store.Add(cmd.Context(), apiKey); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "created key %s for %s, store it now:\n", apiKey.ID, apiKey.ClientID)
			fmt.Fprintln(cmd.OutOrStdout(), key)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human readable name")
	cmd.Flags().StringSliceVar(&permissions, "permission",
		[]string{storage.PermissionSpectraRead, storage.PermissionCatalogRead}, "granted permission, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime of the key; 0 never expires")

	return cmd
}

func newAPIKeyListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list CLIENT",
		Short: "List the keys of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyFile(a)
			if err != nil {
				return err
			}

			keys, err := store.ListByClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, k := range keys {
				state := "active"
				if !k.Active {
					state = "inactive"
				} else if k.Expired(time.Now()) {
					state = "expired"
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %s  %v\n", k.ID, state, k.Name, k.Permissions)
			}

			return nil
		},
	}
}
