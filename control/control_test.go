package control

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadConfigOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nio.toml")
	writeFile(t, path, `
[reactor]
poll_timeout = "2s"

[log]
level = "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Reactor.PollTimeout.Duration)
	assert.Equal(t, DefaultConfig().Reactor.InitialKeys, cfg.Reactor.InitialKeys)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "[reactor]\ninitial_keys = -1\n")
	_, err := LoadConfig(bad)
	assert.Error(t, err)

	dur := filepath.Join(dir, "dur.toml")
	writeFile(t, dur, "[reactor]\npoll_timeout = \"soon\"\n")
	_, err = LoadConfig(dur)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestWriteConfigRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, DefaultConfig()))
	assert.Contains(t, buf.String(), `poll_timeout = "500ms"`)

	path := filepath.Join(t.TempDir(), "out.toml")
	writeFile(t, path, buf.String())
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigStoreNotifiesListeners(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	var seen atomic.Value
	cs.OnReload(func(c Config) { seen.Store(c.Log.Level) })

	next := DefaultConfig()
	next.Log.Level = "warn"
	require.NoError(t, cs.SetConfig(next))
	assert.Equal(t, "warn", seen.Load())
	assert.Equal(t, "warn", cs.GetSnapshot().Log.Level)

	next.Log.Format = "xml"
	assert.Error(t, cs.SetConfig(next))
	assert.Equal(t, "text", cs.GetSnapshot().Log.Format)
}

func TestWatchConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nio.toml")
	writeFile(t, path, "[log]\nlevel = \"info\"\n")
	cs := NewConfigStore(DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchConfig(ctx, path, cs))

	writeFile(t, path, "[log]\nlevel = \"error\"\n")
	require.Eventually(t, func() bool {
		return cs.GetSnapshot().Log.Level == "error"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConfigureLogging(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	l := logrus.New()
	SetLogger(l)
	require.NoError(t, ConfigureLogging(LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	assert.Error(t, ConfigureLogging(LogConfig{Level: "loud"}))
	assert.Error(t, ConfigureLogging(LogConfig{Format: "xml"}))

	SetLogger(nil)
	assert.Same(t, l, Logger())
	assert.Equal(t, "reactor", Component("reactor").Data["component"])
}

func TestMetricsAndProbes(t *testing.T) {
	mr := NewMetricsRegistry()
	mr.Add(MetricSelectCycles, 2)
	mr.Add(MetricSelectCycles, 3)
	mr.Set(MetricPollErrors, 7)
	assert.Equal(t, int64(5), mr.Get(MetricSelectCycles))
	assert.Equal(t, map[string]int64{MetricSelectCycles: 5, MetricPollErrors: 7}, mr.GetSnapshot())
	assert.False(t, mr.Updated().IsZero())

	var nilRegistry *MetricsRegistry
	nilRegistry.Add("x", 1)
	assert.Zero(t, nilRegistry.Get("x"))

	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	dp.RegisterProbe("keys", func() any { return 3 })
	state := dp.DumpState()
	assert.Equal(t, 3, state["keys"])
	assert.Contains(t, state, "platform.cpus")
	// the wakeup mechanism is reported by the selector, not the platform
	assert.NotContains(t, dp.Names(), "platform.wakeup")

	dp.UnregisterProbe("keys")
	assert.NotContains(t, dp.DumpState(), "keys")
}
