package cli

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, defaultConfigPath, configPath(""))

	t.Setenv("CONFIG_PATH", "/etc/lockerd.yaml")
	assert.Equal(t, "/etc/lockerd.yaml", configPath(""))
	assert.Equal(t, "custom.yaml", configPath("custom.yaml"))
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"", slog.LevelInfo, true},
		{"Warning", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tc := range testCases {
		got, ok := parseLevel(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %q
hardware:
  simulate: true
  fleet_size: 4
  direct_lockers: 4
log_level: error
`, filepath.Join(dir, "data", "lockers.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "--config", path, "deposit", "3")
	require.NoError(t, err)
	m := regexp.MustCompile(`locker 3 code (\d{6})`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	out, err = run(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "hardware: simulated")
	assert.Regexp(t, `3\s+true\s+open`, out, "open door survives the restart of the simulator")

	_, err = run(t, "--config", path, "close-door", "3")
	require.NoError(t, err)

	out, err = run(t, "--config", path, "pickup", m[1])
	require.NoError(t, err)
	assert.Contains(t, out, "locker 3 opened")

	_, err = run(t, "--config", path, "pickup", m[1])
	assert.Error(t, err)

	out, err = run(t, "--config", path, "configure", "2", "--kind", "expander", "--actuator", "5", "--sensor", "5", "--special", "8080")
	require.NoError(t, err)
	assert.Contains(t, out, "locker 2 now expander actuator 5")

	out, err = run(t, "--config", path, "pickup", "8080")
	require.NoError(t, err)
	assert.Contains(t, out, "locker 2 opened")

	_, err = run(t, "--config", path, "deposit", "zero")
	assert.ErrorContains(t, err, "invalid locker id")
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "status")
	assert.ErrorContains(t, err, "load configuration")
}
