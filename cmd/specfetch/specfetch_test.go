package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/retrieval"
	"github.com/bhm-spectra/specviewer/internal/spectrum/spectrumtest"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if data, ok := m[url]; ok {
		return data, nil
	}

	return nil, &fetch.HTTPError{URL: url, StatusCode: 404}
}

// testApp runs commands against fetcher with no catalog index configured.
func testApp(fetcher fetch.Fetcher) (*app, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer

	a := &app{
		in:       strings.NewReader(""),
		out:      &out,
		errOut:   &errOut,
		logger:   slog.New(slog.DiscardHandler),
		settings: func() (*archive.Settings, error) { return archive.DefaultSettings(), nil },
		newFetcher: func(context.Context) (fetch.Fetcher, error) {
			return fetcher, nil
		},
		openIndex: func() (catalog.Index, io.Closer, error) {
			return nil, nil, catalog.ErrIndexPathEmpty
		},
	}

	return a, &out, &errOut
}

func execute(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)

	return root.Execute()
}

func TestURLCommand(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	a, out, _ := testApp(nil)

	require.NoError(t, execute(a, "url", "101126", "60477", "63050394846126565", "--branch", "v6_1_3"))

	id, err := identifier.Normalize("101126", "60477", "63050394846126565")
	require.NoError(t, err)

	want, err := archive.Resolve(id, "v6_1_3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], want)
	assert.True(t, strings.HasPrefix(lines[0], "v6_1_3"))

	out.Reset()
	require.NoError(t, execute(a, "url", "101126", "60477", "63050394846126565"))
	assert.Greater(t, strings.Count(out.String(), "\n"), 1, "master expands to the candidate list")
}

func TestURLCommand_InvalidIdentifier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	a, _, _ := testApp(nil)

	err := execute(a, "url", "101126", "60477", "not-a-number")
	require.ErrorIs(t, err, identifier.ErrInvalidIdentifier)

	require.Error(t, execute(a, "url", "101126"), "three arguments are required")
}

func TestGetCommand(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	id, err := identifier.Normalize("101126", "60477", "63050394846126565")
	require.NoError(t, err)

	url, err := archive.Resolve(id, "master")
	require.NoError(t, err)

	a, out, _ := testApp(mapFetcher{
		url: spectrumtest.MustEncode(spectrumtest.Default(101126, 60477, 63050394846126565, "master", "APO")),
	})

	require.NoError(t, execute(a, "get", "101126", "63050394846126565", "--mjd", "60477"))

	var bundle struct {
		Identifier string `json:"identifier"`
		Traces     []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"traces"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &bundle))

	assert.Equal(t, "101126-60477-63050394846126565", bundle.Identifier)
	require.Len(t, bundle.Traces, 1)
	assert.Equal(t, url, bundle.Traces[0].URL)
}

func TestGetCommand_Errors(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	a, _, _ := testApp(mapFetcher{})

	require.ErrorIs(t, execute(a, "get", "all", "4350951054"), retrieval.ErrNoIndex)
	require.ErrorIs(t, execute(a, "get", "15171", "4350951054", "--mjd", "59281"), retrieval.ErrNoData)
	require.Error(t, execute(a, "get", "15171"), "two arguments are required")
}

func TestAPIKeyCommands(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), "keys.yaml")
	t.Setenv("SPECVIEWER_API_KEYS_FILE", path)

	a, out, _ := testApp(nil)

	require.NoError(t, execute(a, "apikey", "generate", "bhm-dashboard", "--name", "BHM dashboard",
		"--permission", storage.PermissionCatalogRead))

	key := strings.TrimSpace(out.String())
	_, err := storage.ParseAPIKey(key)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), key, "only the hash is stored")

	store, err := storage.OpenFileKeyStore(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	found, ok := store.FindByKey(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "bhm-dashboard", found.ClientID)
	assert.Equal(t, []string{storage.PermissionCatalogRead}, found.Permissions)

	out.Reset()
	require.NoError(t, execute(a, "apikey", "list", "bhm-dashboard"))
	assert.Contains(t, out.String(), found.ID)
	assert.Contains(t, out.String(), "active")
}

func TestAPIKeyGenerate_RequiresKeyFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("SPECVIEWER_API_KEYS_FILE", "")

	a, _, _ := testApp(nil)

	require.ErrorIs(t, execute(a, "apikey", "generate", "bhm-dashboard"), ErrKeyFileNotConfigured)
}
