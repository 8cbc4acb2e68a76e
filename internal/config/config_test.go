package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "ftp", cfg.SAP.Protocol)
	assert.Equal(t, 25*time.Second, cfg.SAP.ConnectTimeout)
	assert.Equal(t, "data/invoicing.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.SAP.AllowDevDefaults)
}

func TestLoad_SAPTiers(t *testing.T) {
	path := writeConfig(t, `
sap:
  protocol: sftp
  host: legacy.example.com
  username: legacy
  password: legacy-pw
  remote_path: /inbound
  sftp:
    host: sftp.example.com
    port: 2222
  ftp:
    tls_port: 990
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sftp", cfg.SAP.Protocol)
	assert.Equal(t, "legacy.example.com", cfg.SAP.Host)
	assert.Equal(t, "sftp.example.com", cfg.SAP.SFTP.Host)
	assert.Equal(t, 2222, cfg.SAP.SFTP.Port)
	assert.Equal(t, 990, cfg.SAP.FTP.TLSPort)
}

func TestLoad_InvalidProtocol(t *testing.T) {
	path := writeConfig(t, `
sap:
  protocol: gopher
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sap.protocol")
}

func TestLoad_CredentialsFromEnv(t *testing.T) {
	t.Setenv("SAP_FTP_USERNAME", "env-user")
	t.Setenv("SAP_FTP_PASSWORD", "env-pass")

	path := writeConfig(t, `
sap:
  host: erp.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.SAP.Username)
	assert.Equal(t, "env-pass", cfg.SAP.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
