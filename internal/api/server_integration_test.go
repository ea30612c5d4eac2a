package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/config"
	"github.com/bhm-spectra/specviewer/internal/spectrum/spectrumtest"
	"github.com/bhm-spectra/specviewer/internal/storage"
)

func TestServer_PostgresIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	index, err := catalog.NewPostgresIndex(&storage.Connection{DB: testDB.Connection}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	d, err := catalog.Decode(strings.NewReader(testIndexJSON))
	require.NoError(t, err)

	_, err = index.Import(ctx, d)
	require.NoError(t, err)

	archiveStub := newStubArchive()
	archiveStub.files[urlFor(t, "15171", "59281", "4350951054", "master")] = spectrumtest.MustEncode(
		spectrumtest.Default(15171, 59281, 4350951054, "master", "APO"),
	)

	server := newTestServer(t, archiveStub, Dependencies{Index: index})

	t.Run("ready checks the database", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, server, "/ready").Code)
	})

	t.Run("listings come from the database", func(t *testing.T) {
		rec := get(t, server, "/api/v1/programs/bhm_rm/fields/all/objects")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var objects ObjectsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &objects))
		assert.Equal(t, []string{"4350951054", "63050394846126565"}, objects.Objects)
	})

	t.Run("index mode aggregation", func(t *testing.T) {
		rec := get(t, server, "/api/v1/spectra?field=all&object=4350951054")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Traces []struct {
				Name string `json:"name"`
			} `json:"traces"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Traces, 1)
		assert.Equal(t, "59281.25", body.Traces[0].Name)
	})

	t.Run("unknown object", func(t *testing.T) {
		rec := get(t, server, "/api/v1/spectra?field=all&object=77")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
