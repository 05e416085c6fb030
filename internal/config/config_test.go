package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
  readTimeout: "15s"
log:
  level: debug
  format: console
auth:
  secret: test-secret
store:
  type: memory
collab:
  sendBuffer: 32
  eventRate: 25
history:
  defaultLimit: 20
  maxLimit: 100
`

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "test-secret", cfg.Auth.Secret)
	assert.Equal(t, StoreTypeMemory, cfg.Store.Type)
	assert.Equal(t, 32, cfg.Collab.SendBuffer)

	// Defaults fill unset fields.
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Duration())
	assert.Equal(t, 100, cfg.Collab.EventBurst)
	assert.True(t, cfg.Audit.IsEnabled())
	assert.Equal(t, "stdout", cfg.Audit.Output)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("SHEETD_SECRET", "from-env")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
auth:
  secret: ${SHEETD_SECRET}
store:
  type: ${SHEETD_STORE:-memory}
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Auth.Secret = "s"

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(c *ServiceConfig) {}},
		{
			name:    "missing secret",
			mutate:  func(c *ServiceConfig) { c.Auth.Secret = "" },
			wantErr: "auth.secret",
		},
		{
			name:    "bad port",
			mutate:  func(c *ServiceConfig) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "unknown store",
			mutate:  func(c *ServiceConfig) { c.Store.Type = "etcd" },
			wantErr: "store.type",
		},
		{
			name:    "redis without url",
			mutate:  func(c *ServiceConfig) { c.Store.Type = StoreTypeRedis },
			wantErr: "store.redis.url",
		},
		{
			name:    "webhook enabled without secret",
			mutate:  func(c *ServiceConfig) { c.Webhook.Enabled = true },
			wantErr: "webhook.secret",
		},
		{
			name: "history limits inverted",
			mutate: func(c *ServiceConfig) {
				c.History.DefaultLimit = 100
				c.History.MaxLimit = 10
			},
			wantErr: "history.maxLimit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Auth.Secret = "s"
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	reloaded := make(chan *ServiceConfig, 1)
	w, err := NewWatcher(path, func(cfg *ServiceConfig) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(t.Context()))
	defer func() { _ = w.Stop() }()

	require.NotNil(t, w.LastConfig())
	assert.Equal(t, 9090, w.LastConfig().Server.Port)

	updated := strings.Replace(sampleConfig, "port: 9090", "port: 9191", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9191, cfg.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"45s"`)))
	assert.Equal(t, 45*time.Second, d.Duration())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"45s"`, string(out))

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, time.Duration(0), d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`"bogus"`)))
}
