package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVars(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringArray("var", nil, "")
	cmd.Flags().String("context", "", "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--context", `{"env": "prod", "n": 2}`,
		"--var", "env=staging",
		"--var", "who=me=you",
	}))

	vars, err := parseVars(cmd)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"env": "staging", "n": float64(2), "who": "me=you"}, vars)

	bad := &cobra.Command{}
	bad.Flags().StringArray("var", nil, "")
	bad.Flags().String("context", "", "")
	require.NoError(t, bad.ParseFlags([]string{"--var", "novalue"}))
	_, err = parseVars(bad)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(`
stages:
  s:
    stage-items:
      i: {actions: [pass]}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
stages:
  s:
    iteration: {start: 0, step: 0, end: 2}
    stage-items:
      i: {actions: [pass]}
`), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--dir", dir, "--config", filepath.Join(dir, "absent.toml")})
	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out.String(), "✅ good")
	assert.Contains(t, out.String(), "❌ bad")
}
