package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/hh-checkpoint/internal/acquisition"
)

const sample = `
profile: profile.md
candidate: Jane Doe
acquisition:
  max-pages: 5
  workers: 2
matching:
  dimensions: [skills, seniority]
gemini:
  api-key-file: secrets/gemini
headhunter:
  token-file: /run/secrets/hh
  delay: 2s
  search:
    text: golang
    areas: [1, 2]
promote:
  min-score: 8
  exclude:
    employers: [Acme]
`

func load(t *testing.T, yaml string) (*Config, string, error) {
	t.Helper()

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

	base := t.TempDir()
	cfg, err := Load(v, base)
	return cfg, base, err
}

func TestLoad(t *testing.T) {
	cfg, base, err := load(t, sample)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "profile.md"), cfg.Profile)
	assert.Equal(t, filepath.Join(base, DefaultDatabase), cfg.Database)
	assert.Equal(t, filepath.Join(base, DefaultCheckpointRoot), cfg.CheckpointRoot)
	assert.Equal(t, filepath.Join(base, DefaultQueriesFile), cfg.QueriesFile)
	assert.Equal(t, filepath.Join(base, "secrets", "gemini"), cfg.Gemini.APIKeyFile)
	assert.Equal(t, "/run/secrets/hh", cfg.HeadHunter.TokenFile)

	assert.Equal(t, 5, cfg.Acquisition.MaxPages)
	assert.Equal(t, 2, cfg.Acquisition.Workers)
	assert.Equal(t, 3, cfg.Acquisition.FetchErrorThreshold)
	assert.Equal(t, acquisition.Config{MaxPages: 5, Workers: 2, FetchErrorThreshold: 3}, cfg.Acquisition.Coordinator())
	assert.Equal(t, []string{"skills", "seniority"}, cfg.Matching.Dimensions)
	assert.Equal(t, 8, cfg.Promote.MinScore)
	assert.Equal(t, []string{"Acme"}, cfg.Promote.Exclude.Employers)
	assert.Equal(t, DefaultGeminiModel, cfg.Gemini.Model)
	assert.Equal(t, DefaultGeminiKeyEnv, cfg.Gemini.APIKeyEnv)
	assert.Equal(t, 2*time.Second, cfg.HeadHunter.Delay)
	assert.Equal(t, "golang", cfg.HeadHunter.Search.Text)
	assert.Equal(t, []int{1, 2}, cfg.HeadHunter.Search.Areas)
	assert.Equal(t, DefaultSchedule, cfg.Watch.Schedule)
	assert.Equal(t, "Jane Doe", cfg.Candidate)
}

func TestAllConfiguredPathsAreAbsolute(t *testing.T) {
	cfg, _, err := load(t, sample)
	require.NoError(t, err)

	for _, p := range cfg.paths() {
		if *p == "" {
			continue
		}
		assert.True(t, filepath.IsAbs(*p), "path %q is not absolute", *p)
	}
}

func TestLoadRequiresProfile(t *testing.T) {
	_, _, err := load(t, "candidate: x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile is required")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]struct {
		yaml string
		want string
	}{
		"score out of range": {
			yaml: "profile: p.md\npromote:\n  min-score: 11\n",
			want: "promote.min-score",
		},
		"bad schedule": {
			yaml: "profile: p.md\nwatch:\n  schedule: every day\n",
			want: "not a valid cron expression",
		},
		"negative workers": {
			yaml: "profile: p.md\nacquisition:\n  workers: -1\n",
			want: "acquisition.workers",
		},
		"empty dimension": {
			yaml: "profile: p.md\nmatching:\n  dimensions: [skills, '']\n",
			want: "matching.dimensions[1] is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := load(t, tt.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRejectsRelativePaths(t *testing.T) {
	cfg := &Config{
		Database:       "relative.db",
		CheckpointRoot: "/abs/checkpoints",
		Profile:        "/abs/profile.md",
		QueriesFile:    "/abs/queries.yaml",
		Gemini:         GeminiConfig{Model: DefaultGeminiModel},
		Watch:          WatchConfig{Schedule: DefaultSchedule},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database must be an absolute path")
}

func TestResolveKeepsEmptyPaths(t *testing.T) {
	cfg := &Config{Profile: "p.md"}
	require.NoError(t, cfg.Resolve("/base"))

	assert.Equal(t, "/base/p.md", cfg.Profile)
	assert.Empty(t, cfg.HeadHunter.TokenFile)
}
