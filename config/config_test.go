package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, uint16(5351), cfg.GatewayPort)
	assert.Equal(t, uint(9), cfg.Retry)
	assert.Equal(t, uint32(7200), cfg.LifetimeSeconds())
	assert.Empty(t, cfg.Gateway)

	t.Log("✅ NewConfig 测试通过")
}

// TestConfig_Validate 测试配置验证
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"IPv6 网关", func(c *Config) { c.Gateway = "fe80::1" }, ErrInvalidGateway},
		{"非法网关", func(c *Config) { c.Gateway = "router.local" }, ErrInvalidGateway},
		{"端口为 0", func(c *Config) { c.GatewayPort = 0 }, ErrInvalidGatewayPort},
		{"重试为 0", func(c *Config) { c.Retry = 0 }, ErrInvalidRetry},
		{"租期为 0", func(c *Config) { c.Lifetime = 0 }, ErrInvalidLifetime},
		{"租期过长", func(c *Config) { c.Lifetime = Duration(5000000000 * time.Second) }, ErrInvalidLifetime},
		{"超时为负", func(c *Config) { c.Timeout = Duration(-time.Second) }, ErrInvalidTimeout},
		{"日志格式", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}

	t.Run("日志级别", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Log.Level = "natpmp.transport=debug,warn"
		assert.NoError(t, cfg.Validate())

		cfg.Log.Level = "natpmp=loud"
		assert.Error(t, cfg.Validate())
	})

	t.Run("IPv4 网关", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Gateway = "192.168.1.1"
		assert.NoError(t, cfg.Validate())
	})
}

// ============================================================================
//                              JSON
// ============================================================================

func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"gateway": "10.0.0.1", "lifetime": "1h", "log": {"level": "debug"}}`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Gateway)
	assert.Equal(t, uint32(3600), cfg.LifetimeSeconds())
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未出现的字段保持默认值
	assert.Equal(t, DefaultRetry, cfg.Retry)
	assert.Equal(t, DefaultGatewayPort, cfg.GatewayPort)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"retry": 0}`))
	assert.ErrorIs(t, err, ErrInvalidRetry)

	_, err = FromJSON([]byte(`{"lifetime": true}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "natpmp.json")

	cfg := NewConfig()
	cfg.Gateway = "192.168.0.1"
	cfg.Retry = 4
	data, err := cfg.ToJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"d": "90m"}`), &v))
	assert.Equal(t, 90*time.Minute, v.D.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"d": 7200}`), &v))
	assert.Equal(t, 2*time.Hour, v.D.Duration())

	assert.Error(t, json.Unmarshal([]byte(`{"d": "soon"}`), &v))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d": "2h0m0s"}`, string(out))
}

// ============================================================================
//                              环境变量
// ============================================================================

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NATPMP_GATEWAY":      "172.16.0.1",
		"NATPMP_GATEWAY_PORT": "15351",
		"NATPMP_RETRY":        "3",
		"NATPMP_LIFETIME":     "600",
		"NATPMP_TIMEOUT":      "5s",
		"NATPMP_LOG_FILE":     "/tmp/natpmp.log",
	}

	cfg := NewConfig()
	require.NoError(t, applyEnv(cfg, func(k string) string { return env[k] }))

	assert.Equal(t, "172.16.0.1", cfg.Gateway)
	assert.Equal(t, uint16(15351), cfg.GatewayPort)
	assert.Equal(t, uint(3), cfg.Retry)
	assert.Equal(t, uint32(600), cfg.LifetimeSeconds())
	assert.Equal(t, 5*time.Second, cfg.Timeout.Duration())
	assert.Equal(t, "/tmp/natpmp.log", cfg.Log.File)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_Errors(t *testing.T) {
	env := map[string]string{
		"NATPMP_GATEWAY_PORT": "70000",
		"NATPMP_RETRY":        "many",
		"NATPMP_LIFETIME":     "forever",
	}

	cfg := NewConfig()
	err := applyEnv(cfg, func(k string) string { return env[k] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATPMP_GATEWAY_PORT")
	assert.Contains(t, err.Error(), "NATPMP_RETRY")
	assert.Contains(t, err.Error(), "NATPMP_LIFETIME")

	// 无法解析的值保持原配置
	assert.Equal(t, NewConfig(), cfg)
}

func TestApplyEnv_Process(t *testing.T) {
	t.Setenv("NATPMP_RETRY", "2")

	cfg := NewConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, uint(2), cfg.Retry)
}
