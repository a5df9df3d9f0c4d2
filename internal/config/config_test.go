package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.MinHorizon)
	assert.Equal(t, 15*time.Millisecond, cfg.TimeStep.Std())
	assert.Equal(t, 1, cfg.EffectivePreferredHorizon())
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/node.yaml")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MinHorizon)
	assert.Equal(t, 2, cfg.EffectivePreferredHorizon())
	assert.Equal(t, 20*time.Millisecond, cfg.TimeStep.Std())
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff.Std())
	assert.Equal(t, 2*time.Second, cfg.DialTimeout.Std(), "omitted fields keep defaults")
	assert.Equal(t, []Service{{Name: "game", Port: 7000}}, cfg.Services)
	assert.Equal(t, []Peer{{Host: "10.0.0.2", Port: 7000}}, cfg.Peers)
	assert.Equal(t, "ticks.db", cfg.Journal)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load("testdata/node.cue")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MinHorizon)
	assert.Nil(t, cfg.PreferredHorizon)
	assert.Equal(t, 20*time.Millisecond, cfg.TimeStep.Std())
	assert.Equal(t, 2*time.Second, cfg.DialTimeout.Std(), "schema default")
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []Service{{Name: "game", Port: 7000}}, cfg.Services)
	assert.Equal(t, []Peer{{Host: "10.0.0.2", Port: 7000}}, cfg.Peers)
}

func TestLoad_CUESchemaRejectsBounds(t *testing.T) {
	_, err := Load("testdata/invalid.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate cue")
}

func TestLoad_CUEClosedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.cue")
	require.NoError(t, os.WriteFile(path, []byte("frame_rate: 60\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_CUEPreferredHorizon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pref.cue")
	require.NoError(t, os.WriteFile(path, []byte("min_horizon: 2\npreferred_horizon: 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.PreferredHorizon)
	assert.Equal(t, 4, cfg.EffectivePreferredHorizon())
}

func TestLoad_YAMLUnknownField(t *testing.T) {
	_, err := Load("testdata/unknown.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_rate")
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte("min_horizon = 1\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseYAML_Empty(t *testing.T) {
	cfg, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseYAML_BadDuration(t *testing.T) {
	_, err := ParseYAML([]byte("time_step: soon\n"))
	assert.Error(t, err)
}

func TestValidate_JoinsProblems(t *testing.T) {
	neg := -1
	cfg := Default()
	cfg.MinHorizon = 0
	cfg.PreferredHorizon = &neg
	cfg.TimeStep = 0
	cfg.LogLevel = "loud"
	cfg.Services = []Service{{Name: "game", Port: 1}, {Name: "game", Port: 70000}, {Port: 2}}
	cfg.Peers = []Peer{{Port: 0}}

	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"min_horizon",
		"preferred_horizon",
		"time_step",
		"log_level",
		`duplicate name "game"`,
		"port 70000 out of range",
		"services[2]: name is required",
		"peers[0]: host is required",
		"peers[0]: port 0 out of range",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_BackoffOrder(t *testing.T) {
	cfg := Default()
	cfg.RetryBackoff = Duration(10 * time.Second)
	cfg.RetryBackoffMax = Duration(time.Second)
	assert.ErrorContains(t, cfg.Validate(), "retry_backoff_max")
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("later")))
}
