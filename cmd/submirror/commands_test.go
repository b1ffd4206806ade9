package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	oldVersion := Version
	oldBuildTime := BuildTime
	oldGitCommit := GitCommit
	defer func() {
		Version = oldVersion
		BuildTime = oldBuildTime
		GitCommit = oldGitCommit
	}()

	Version = "1.2.3"
	BuildTime = "2026-01-01"
	GitCommit = "abc1234"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	// versionCmd prints via fmt.Printf, so capture is best-effort; at
	// minimum execution must not error and the command must be registered.
	cmd, _, err := rootCmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", cmd.Name())
}

func TestOperationalCommandsRegistered(t *testing.T) {
	for _, name := range []string{"sync", "change-plan", "cancel"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotNil(t, cmd.Args, "%s should require an email argument", name)
	}
}

func TestChangePlanRequiresPlanFlag(t *testing.T) {
	flag := changePlanCmd.Flags().Lookup("plan")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestEnvOr(t *testing.T) {
	t.Setenv("SUBMIRROR_TEST_KEY", "set")
	assert.Equal(t, "set", envOr("SUBMIRROR_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", envOr("SUBMIRROR_TEST_KEY_MISSING", "fallback"))
}
