package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/config"
)

func parsedServeCommand(t *testing.T, args ...string) (*cobra.Command, serveFlags) {
	t.Helper()
	var f serveFlags
	cmd := &cobra.Command{Use: "serve"}
	bindServeFlags(cmd, &f)
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), ".env")}, args...)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, f
}

func TestResolveConfig_FlagsWinOverEnvironment(t *testing.T) {
	// GIVEN: Port and storage set in the environment and on the command line
	t.Setenv(config.EnvPort, "9000")
	t.Setenv(config.EnvStorage, config.StorageSQLite)
	cmd, f := parsedServeCommand(t, "--port", "9100", "--storage", "memory", "--scenario", "metal-shed")

	// WHEN: Resolved
	cfg, err := resolveConfig(cmd, f)

	// THEN: Flags win; untouched values keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "metal-shed", cfg.Seed.Scenario)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestResolveConfig_UnsetFlagsKeepEnvironment(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "warn")
	cmd, f := parsedServeCommand(t)

	cfg, err := resolveConfig(cmd, f)

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestResolveConfig_InvalidFlag(t *testing.T) {
	cmd, f := parsedServeCommand(t, "--storage", "postgres")

	_, err := resolveConfig(cmd, f)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	assert.NoError(t, err)
	_, err = newLogger("info", "")
	assert.NoError(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
	_, err = newLogger("loud", "text")
	assert.Error(t, err)
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	mem, err := openStorage(config.StorageConfig{Driver: config.StorageMemory})
	require.NoError(t, err)
	assert.Nil(t, mem.ping)
	assert.NoError(t, mem.reset(ctx))
	assert.NoError(t, mem.close())

	db, err := openStorage(config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(t.TempDir(), "data", "costs.db")})
	require.NoError(t, err)
	defer db.close()
	assert.NoError(t, db.ping(ctx))
	assert.NoError(t, db.reset(ctx))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "cost-engine version "+Version+"\n", out.String())
}
