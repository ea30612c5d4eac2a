package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Candidates(t *testing.T) {
	policy := NewPolicy(BranchLists{})
	defaults := DefaultBranchLists()

	tests := []struct {
		name      string
		field     string
		mjd       string
		requested string
		want      []string
	}{
		{name: "legacy era", field: "3006", mjd: "1", want: defaults.Legacy},
		{name: "legacy exception", field: "8033", mjd: "1", want: defaults.Legacy},
		{name: "boss era", field: "3007", mjd: "1", want: defaults.BOSS},
		{name: "boss upper bound", field: "14999", mjd: "1", want: defaults.BOSS},
		{name: "sdssv era", field: "15000", mjd: "1", want: defaults.SDSSV},
		{name: "master expands", field: "15000", mjd: "1", requested: "MASTER", want: defaults.SDSSV},
		{
			name: "plate suffix moves v6_0_4 first", field: "15143p", mjd: "59205",
			want: []string{"v6_0_4", "master", "v6_2_1", "v6_2_0", "v6_1_3", "v6_1_1", "v6_1_0", "v6_0_9"},
		},
		{name: "stacks", field: "allepoch_apo", mjd: "60000", want: defaults.Stacks},
		{name: "explicit branch", field: "15000", mjd: "1", requested: " V6_1_3 ", want: []string{"v6_1_3"}},
		{name: "legacy selector on boss", field: "5000", mjd: "1", requested: "legacy", want: defaults.BOSS},
		{name: "legacy selector on sdssv", field: "15000", mjd: "1", requested: "legacy", want: []string{"v6_0_4"}},
		{name: "legacy selector on stacks", field: "allepoch", mjd: "1", requested: "legacy", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := mustID(t, tt.field, tt.mjd, "1")
			assert.Equal(t, tt.want, policy.Candidates(id, tt.requested))
		})
	}
}

func TestPolicy_CandidatesAreCopies(t *testing.T) {
	policy := NewPolicy(BranchLists{})
	id := mustID(t, "15000", "1", "1")

	first := policy.Candidates(id, "")
	first[0] = "mutated"

	assert.Equal(t, "master", policy.Candidates(id, "")[0])
}

func TestNewPolicy_NormalizesOverrides(t *testing.T) {
	policy := NewPolicy(BranchLists{SDSSV: []string{" V6_2_0", "v6_2_0", "", "Master"}})

	lists := policy.Lists()
	assert.Equal(t, []string{"v6_2_0", "master"}, lists.SDSSV)
	assert.Equal(t, DefaultBranchLists().BOSS, lists.BOSS)
}

func TestLoadSettings_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specviewer.yaml")
	content := `
branches:
  sdssv: [v6_2_1, master]
fps_cutoff_mjd: 59600
verification:
  field: "15000"
  mjd: "59146"
  object: "4375786564"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"v6_2_1", "master"}, settings.Branches.SDSSV)
	assert.Equal(t, DefaultBranchLists().BOSS, settings.Branches.BOSS)
	assert.Equal(t, 59600, settings.FPSCutoffMJD)
	assert.Equal(t, Target{Field: "15000", MJD: "59146", Object: "4375786564"}, settings.Verification)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	settings, err := LoadSettings("/nonexistent/path/specviewer.yaml")

	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettings_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specviewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("branches: [invalid yaml\n"), 0o600))

	settings, err := LoadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultFPSCutoffMJD, settings.FPSCutoffMJD)
	assert.Equal(t, DefaultBranchLists(), settings.Branches)
}

func TestLoadSettings_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specviewer.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	settings, err := LoadSettings(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps_cutoff_mjd: 60000\n"), 0o600))
	t.Setenv(SettingsPathEnvVar, path)

	settings, err := LoadSettingsFromEnv()

	require.NoError(t, err)
	assert.Equal(t, 60000, settings.FPSCutoffMJD)
}
