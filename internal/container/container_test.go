package container

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderup-go/config"
	"orderup-go/infrastructure/alert"
)

const testConfig = `
env: test
round:
  durationSeconds: %DURATION%
orders:
  maxActive: 3
  initialSpawn: 2
engine:
  tickIntervalMs: 20
server:
  listenAddr: "127.0.0.1:0"
  metricsAddr: "127.0.0.1:0"
log:
  level: warn
  outputs: [stderr]
catalog:
  products:
    - id: mug
      name: Coffee Mug
  orders:
    - id: o-standard
      products: [mug]
      basePoints: 50
`

func renderConfig(duration string) string {
	return strings.ReplaceAll(testConfig, "%DURATION%", duration)
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestContainerServesAPIAndMetrics(t *testing.T) {
	cfg, err := config.Parse([]byte(renderConfig("300")))
	require.NoError(t, err)

	c := NewFromConfig(cfg, "")
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	defer func() { assert.NoError(t, c.Stop()) }()
	require.NoError(t, c.HealthCheck())

	resp := post(t, "http://"+c.APIAddr()+"/round/start")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + c.MetricsAddr())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "orderup_game_rounds_started_total 1")
	assert.Contains(t, string(body), `orderup_game_orders_spawned_total{type="STANDARD"} 2`)
}

func TestContainerStagesReloadedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(renderConfig("300")), 0o644))

	c, err := New(path)
	require.NoError(t, err)
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	defer func() { _ = c.Stop() }()

	ctx := context.Background()
	require.NoError(t, c.Engine().StartRound(ctx))

	// 先写临时文件再 rename，避免监听到截断后的空文件
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(renderConfig("60")), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, c.Engine().HasPending, 3*time.Second, 20*time.Millisecond)

	// 进行中的回合不受影响
	snap, err := c.Engine().Snapshot(ctx)
	require.NoError(t, err)
	assert.Greater(t, snap.RemainingSecs, 250.0)

	require.NoError(t, c.Engine().EndRound(ctx))
	require.NoError(t, c.Engine().StartRound(ctx))
	snap, err = c.Engine().Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 60, snap.RemainingSecs, 1)
}

func TestStartRollsBackOnFailure(t *testing.T) {
	cfg, err := config.Parse([]byte(renderConfig("300")))
	require.NoError(t, err)
	cfg.Server.MetricsAddr = "256.0.0.1:bad"

	c := NewFromConfig(cfg, "")
	require.NoError(t, c.Build())
	mock := alert.NewMockChannel("mock")
	c.Alerts().AddChannel(mock)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics_server")
	assert.Error(t, c.HealthCheck())
	assert.Error(t, c.HealthCheck())
	_ = c.Stop()

	require.Equal(t, 1, mock.Count(), "second failure is throttled")
	assert.Equal(t, "health", mock.Alerts()[0].Source)
	assert.Equal(t, alert.LevelError, mock.Alerts()[0].Level)
}

func TestContainerAlertsOnRejectedReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(renderConfig("300")), 0o644))

	c, err := New(path)
	require.NoError(t, err)
	require.NoError(t, c.Build())
	mock := alert.NewMockChannel("mock")
	c.Alerts().AddChannel(mock)
	require.NoError(t, c.Start(context.Background()))
	defer func() { _ = c.Stop() }()

	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(renderConfig("-5")), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return mock.Count() == 1 }, 3*time.Second, 20*time.Millisecond)
	got := mock.Alerts()[0]
	assert.Equal(t, "hot_reload", got.Source)
	assert.Equal(t, alert.LevelWarning, got.Level)
	assert.Equal(t, path, got.Fields["path"])
	assert.False(t, c.Engine().HasPending())
}
