package catalog

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
)

const sampleDictionaries = `[
  {"bhm_rm": [15171, 15172, "all"], "bhm_aqmes_med": [101126, "all"]},
  {
    "15171": [4350951054, 4350951055],
    "15172": [4350951054],
    "bhm_rm-all": [4350951054, 4350951055],
    "101126": [63050394846126565],
    "bhm_aqmes_med-all": [63050394846126565]
  },
  {
    "4350951054": [[15171, 59281, 17.2, 59281.25], [15172, 59290, 17.4, 59290.5]],
    "4350951055": [[15171, 59281, 19.0, 59281]],
    "63050394846126565": [[101126, 60477, 18.1, 60477.3]]
  },
  {"4350951054": [27021600949438682]}
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleIndex(t *testing.T) *MemoryIndex {
	t.Helper()

	d, err := Decode(strings.NewReader(sampleDictionaries))
	require.NoError(t, err)

	return NewMemoryIndex(d, discardLogger())
}

func TestDecode(t *testing.T) {
	d, err := Decode(strings.NewReader(sampleDictionaries))
	require.NoError(t, err)

	assert.Equal(t, []string{"15171", "15172", "all"}, d.Programs["bhm_rm"])
	assert.Equal(t, []string{"63050394846126565"}, d.FieldIDs["101126"], "large IDs keep every digit")
	assert.Equal(t, []Epoch{
		{Field: 15171, MJD: 59281, Spec1G: 17.2, MJDFinal: 59281.25},
		{Field: 15172, MJD: 59290, Spec1G: 17.4, MJDFinal: 59290.5},
	}, d.CatalogIDs["4350951054"])
	assert.Equal(t, []string{"27021600949438682"}, d.Linked["4350951054"])
	assert.Equal(t, []string{"bhm_aqmes_med", "bhm_rm"}, d.ProgramNames())
}

func TestDecode_WithoutLinked(t *testing.T) {
	d, err := Decode(strings.NewReader(`[{}, {}, {"1": [[3606, 55182]]}]`))
	require.NoError(t, err)

	assert.Empty(t, d.Linked)
	assert.Equal(t, []Epoch{{Field: 3606, MJD: 55182, MJDFinal: 55182}}, d.CatalogIDs["1"])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "programs"},
		{name: "too few parts", input: `[{}, {}]`},
		{name: "bad program entry", input: `[{"p": [true]}, {}, {}]`},
		{name: "short epoch", input: `[{}, {}, {"1": [[3606]]}]`},
		{name: "fractional field", input: `[{}, {}, {"1": [[3606.5, 55182]]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformedIndex)
		})
	}
}

func TestDictionaries_EncodeRoundTrip(t *testing.T) {
	d, err := Decode(strings.NewReader(sampleDictionaries))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, d.Encode(&buf))

	again, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestEpoch_Label(t *testing.T) {
	assert.Equal(t, "59281.25", Epoch{MJDFinal: 59281.25}.Label())
	assert.Equal(t, "59281", Epoch{MJDFinal: 59281}.Label())

	data, err := json.Marshal(Epoch{Field: 1, MJD: 2, Spec1G: 3.5, MJDFinal: 2.25})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2, 3.5, 2.25]`, string(data))
}

func TestMemoryIndex_Lookups(t *testing.T) {
	ctx := context.Background()
	idx := sampleIndex(t)

	programs, err := idx.Programs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bhm_aqmes_med", "bhm_rm"}, programs)

	fields, err := idx.Fields(ctx, "bhm_rm")
	require.NoError(t, err)
	assert.Equal(t, []string{"15171", "15172", "all"}, fields)

	objects, err := idx.Objects(ctx, "bhm_rm", "15172")
	require.NoError(t, err)
	assert.Equal(t, []string{"4350951054"}, objects)

	all, err := idx.Objects(ctx, "bhm_rm", "ALL")
	require.NoError(t, err)
	assert.Equal(t, []string{"4350951054", "4350951055"}, all)

	epochs, err := idx.Epochs(ctx, "4350951054")
	require.NoError(t, err)
	assert.Len(t, epochs, 2)

	linked, err := idx.Linked(ctx, "4350951054")
	require.NoError(t, err)
	assert.Equal(t, []string{"27021600949438682"}, linked)

	none, err := idx.Linked(ctx, "4350951055")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, idx.HealthCheck(ctx))
}

func TestMemoryIndex_Errors(t *testing.T) {
	ctx := context.Background()
	idx := sampleIndex(t)

	_, err := idx.Epochs(ctx, "999")
	assert.ErrorIs(t, err, ErrUnknownObject)

	_, err = idx.Fields(ctx, "mwm_galactic")
	assert.ErrorIs(t, err, ErrUnknownProgram)

	_, err = idx.Objects(ctx, "mwm_galactic", "all")
	assert.ErrorIs(t, err, ErrUnknownProgram)

	_, err = idx.Objects(ctx, "bhm_rm", "99999")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestMemoryIndex_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	idx := sampleIndex(t)

	epochs, err := idx.Epochs(ctx, "4350951054")
	require.NoError(t, err)

	epochs[0].MJD = 1

	again, err := idx.Epochs(ctx, "4350951054")
	require.NoError(t, err)
	assert.Equal(t, int64(59281), again[0].MJD)
}

func TestLoadFileAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionaries.txt")
	require.NoError(t, os.WriteFile(path, []byte(`[{"a": ["all"]}, {"a-all": [1]}, {"1": [[1, 2]]}]`), 0o600))

	idx, err := LoadFile(path, discardLogger())
	require.NoError(t, err)

	programs, err := idx.Programs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, programs)

	require.NoError(t, os.WriteFile(path, []byte(sampleDictionaries), 0o600))
	require.NoError(t, idx.Reload())

	programs, err = idx.Programs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bhm_aqmes_med", "bhm_rm"}, programs)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	require.Error(t, idx.Reload())

	programs, err = idx.Programs(context.Background())
	require.NoError(t, err)
	assert.Len(t, programs, 2, "failed reload keeps the previous snapshot")
}

func TestOpen_FileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionaries.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleDictionaries), 0o600))

	idx, closer, err := Open(&Config{Path: path}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	_, ok := idx.(*MemoryIndex)
	assert.True(t, ok)

	_, _, err = Open(&Config{Path: " "}, discardLogger())
	assert.ErrorIs(t, err, ErrIndexPathEmpty)
}
