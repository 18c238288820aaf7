package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "queue.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "persistq", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"put", "get", "peek", "size", "list", "update", "remove", "shrink", "health", "test"}

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

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "persistq.db", dbFlag.DefValue)

	variantFlag := cmd.PersistentFlags().Lookup("variant")
	require.NotNil(t, variantFlag)
	assert.Equal(t, "fifo", variantFlag.DefValue)

	for _, name := range []string{"config", "table", "serializer", "driver", "no-auto-commit", "trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
}

func TestGetCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	getCmd, _, err := cmd.Find([]string{"get"})
	require.NoError(t, err)

	for _, name := range []string{"block", "timeout", "id", "done"} {
		assert.NotNil(t, getCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "0s", getCmd.Flags().Lookup("timeout").DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
	assert.NotNil(t, testCmd.Flags().Lookup("golden-dir"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := run(t, "--format", "invalid", "--db", tempDB(t), "size")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "persistq.yaml")
	dbPath := filepath.Join(dir, "from-file.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte("path: "+dbPath+"\nvariant: lifo\n"), 0644))

	_, err := run(t, "--config", cfgPath, "put", "a", "b")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "get")
	require.NoError(t, err)
	assert.Equal(t, "b\n", out)

	// --variant wins over the file; fifo reads a different table, which is empty.
	_, err = run(t, "--config", cfgPath, "--variant", "fifo", "get")
	require.Error(t, err)
	assert.Equal(t, ExitEmpty, GetExitCode(err))

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := run(t, "--db", tempDB(t), "--variant", "priority", "size")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "size")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
