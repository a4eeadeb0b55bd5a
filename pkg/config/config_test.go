package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`data_directory: /var/lib/vertexdb`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vertexdb", cfg.DataDirectory)
	assert.Equal(t, "0.0.0.0:1729", cfg.GRPCAddress)
	assert.False(t, cfg.HTTPEnabled)
	assert.Equal(t, 4104, cfg.Diagnostics.MonitoringPort)
}

func TestParseOverridesNestedBlocks(t *testing.T) {
	cfg, err := Parse([]byte(`
data_directory: ./data
http_enabled: true
http_address: 0.0.0.0:9000
tls:
  enabled: true
  cert: /etc/vertexdb/cert.pem
  key: /etc/vertexdb/key.pem
diagnostics:
  monitoring_port: 9090
  reporting_enabled: true
development_mode: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.HTTPEnabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPAddress)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "/etc/vertexdb/cert.pem", cfg.TLS.Cert)
	assert.Equal(t, 9090, cfg.Diagnostics.MonitoringPort)
	assert.True(t, cfg.DevelopmentMode)
}

func TestParseRejectsUnknownOption(t *testing.T) {
	_, err := Parse([]byte(`bogus_option: true`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus_option")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./data", cfg.DataDirectory)
	assert.False(t, cfg.DevelopmentMode)
}
