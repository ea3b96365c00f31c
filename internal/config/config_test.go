package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/atlas/internal/limiter"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, ":8080", cfg.Gateway.Address)
	assert.Equal(t, "X-Client-ID", cfg.Gateway.ClientIDHeader)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ShutdownTimeout)
	assert.Equal(t, PolicySourceDefault, cfg.Policy.Source)
	assert.Equal(t, ControlStoreEtcd, cfg.Control.Store)
	assert.Equal(t, []string{"localhost:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ATLAS_GATEWAY_ADDRESS", ":9999")
	t.Setenv("ATLAS_GATEWAY_MAX_CONNECTIONS", "64")
	t.Setenv("ATLAS_GATEWAY_READ_TIMEOUT", "2s")
	t.Setenv("ATLAS_METRICS_ENABLED", "false")
	t.Setenv("ATLAS_ETCD_ENDPOINTS", "etcd-0:2379, etcd-1:2379,")
	t.Setenv("ATLAS_POLICY_FILE", "/etc/atlas/policies.yaml")
	t.Setenv("ATLAS_CONTROL_STORE", ControlStoreMemory)

	cfg := LoadConfig()

	assert.Equal(t, ":9999", cfg.Gateway.Address)
	assert.Equal(t, 64, cfg.Gateway.MaxConnections)
	assert.Equal(t, 2*time.Second, cfg.Gateway.ReadTimeout)
	assert.False(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, PolicySourceFile, cfg.Policy.Source, "a policy file selects the file source")
	assert.Equal(t, ControlStoreMemory, cfg.Control.Store)
}

func TestLoadConfig_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("ATLAS_GATEWAY_MAX_CONNECTIONS", "lots")
	t.Setenv("ATLAS_GATEWAY_READ_TIMEOUT", "soon")
	t.Setenv("ATLAS_POLICY_SOURCE", PolicySourceEtcd)
	t.Setenv("ATLAS_POLICY_FILE", "ignored.yaml")

	cfg := LoadConfig()

	assert.Equal(t, 0, cfg.Gateway.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ReadTimeout)
	assert.Equal(t, PolicySourceEtcd, cfg.Policy.Source)
}

const samplePolicies = `
policies:
  default:
    algorithm: fixed
    limit: 100
    window_seconds: 60
  search:
    algorithm: sliding
    limit: 3
    window_seconds: 2
  premium:
    algorithm: token
    capacity: 50
    refill_rate_per_second: 2.5
`

func TestParsePolicies(t *testing.T) {
	policies, err := ParsePolicies([]byte(samplePolicies))
	require.NoError(t, err)

	assert.Equal(t, limiter.Policies{
		"default": {Algorithm: limiter.AlgoFixedWindow, Limit: 100, WindowSeconds: 60},
		"search":  {Algorithm: limiter.AlgoSlidingWindow, Limit: 3, WindowSeconds: 2},
		"premium": {Algorithm: limiter.AlgoTokenBucket, Capacity: 50, RefillRatePerSecond: 2.5},
	}, policies)
}

func TestParsePolicies_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ``},
		{"missing_default", "policies:\n  a: {algorithm: fixed, limit: 1, window_seconds: 1}\n"},
		{"negative_refill", "policies:\n  default: {algorithm: token, capacity: 1, refill_rate_per_second: -1}\n"},
		{"zero_window", "policies:\n  default: {algorithm: sliding, limit: 1}\n"},
		{"unknown_field", "policies:\n  default: {algorithm: fixed, limit: 1, window: 1}\n"},
		{"bad_yaml", "policies: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicies([]byte(tt.yaml))
			assert.ErrorIs(t, err, limiter.ErrInvalidConfig)
		})
	}
}

func TestLoadPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicies), 0o600))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	assert.Len(t, policies, 3)

	_, err = LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
