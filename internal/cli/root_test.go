package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dust/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dust", cmd.Use)
	assert.Contains(t, cmd.Long, "relational schema")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "schema", "migrate", "export", "import", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"dialect", "db", "env-file"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		// Unset flags fall back to the environment.
		assert.Equal(t, "", flag.DefValue, name)
	}
}

func TestUnitFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"schema", "migrate"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		flag := sub.Flags().Lookup("unit")
		require.NotNil(t, flag, name)
		assert.Equal(t, "u", flag.Shorthand)
	}
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outputFlag := exportCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
	assert.NotNil(t, exportCmd.Flags().Lookup("unit"))
	assert.NotNil(t, exportCmd.Flags().Lookup("type"))
	assert.NotNil(t, exportCmd.Flags().Lookup("where"))
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "validate", "testdata/shop.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootOptions_Config(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvDialect, "postgres")
	t.Setenv(config.EnvDSN, "postgres://env/dust")

	opts := &RootOptions{Format: "json"}
	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "postgres://env/dust", cfg.DSN)
	assert.Equal(t, "json", cfg.Format)

	opts.Dialect = "sqlite"
	opts.DSN = "flag.db"
	cfg, err = opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect, "flags override the environment")
	assert.Equal(t, "flag.db", cfg.DSN)
}
