package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"model.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, "model.hcl", cfg.ModelPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Mode)
}

func TestParseModelFlagBeatsPositional(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-model", "a.hcl", "b.hcl"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "a.hcl", cfg.ModelPath)

	cfg, _, err = Parse([]string{"-m", "short.hcl"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "short.hcl", cfg.ModelPath)
}

func TestParseDerivativeQuery(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{
		"-params", "src.x, src.y",
		"-unknowns", "c.z",
		"-mode", "REV",
		"model.hcl",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"src.x", "src.y"}, cfg.Params)
	assert.Equal(t, []string{"c.z"}, cfg.Unknowns)
	assert.Equal(t, "rev", cfg.Mode)
}

func TestParseHelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "omdao - evaluate a model")
}

func TestParseNoModelPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"log-format", []string{"-log-format", "yaml", "model.hcl"}, "invalid log-format"},
		{"log-level", []string{"-log-level", "loud", "model.hcl"}, "invalid log-level"},
		{"mode", []string{"-mode", "sideways", "-params", "a", "-unknowns", "b", "model.hcl"}, "Mode must be one of"},
		{"mode without query", []string{"-mode", "fwd", "model.hcl"}, "needs both params and unknowns"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			_, _, err := Parse(tc.args, &out)
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b "))
}
