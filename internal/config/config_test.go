package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyJSON = `{
  "local": {"name": "Local Orthanc", "ae_title": "LOCAL_AE", "ip_address": "10.0.0.2", "port": 4242},
  "remote": {"name": "Hospital PACS", "ae_title": "PACS_AE", "ip_address": "10.0.0.9", "port": 104}
}`

const multiYAML = `
local:
  name: Local
  ae_title: LOCAL_AE
  ip_address: 10.0.0.2
  port: 4242
remotes:
  gerald:
    name: Gerald
    ae_title: GERALD
    ip_address: 10.1.0.5
    port: 11112
    transfer_syntax: ExplicitVRLittleEndian
    local_config:
      ae_title: LOCAL_VPN
      ip_address: 172.16.0.2
      port: 4243
  main:
    name: Main
    ae_title: MAIN_AE
    ip_address: 10.1.0.6
    port: 104
sync:
  hours: 6
  interval: 2m
  mode: all
database:
  enabled: true
  driver: sqlite
  path: /tmp/autosync.db
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLegacyRemoteIsMigrated(t *testing.T) {
	cfg, err := Load(writeConfig(t, "dicom_config.json", legacyJSON))
	require.NoError(t, err)

	assert.Nil(t, cfg.Remote)
	require.Contains(t, cfg.Remotes, "hospital_pacs")
	remote := cfg.Remotes["hospital_pacs"]
	assert.Equal(t, "PACS_AE", remote.AETitle)
	assert.Equal(t, DefaultTransferSyntax, remote.TransferSyntax)
	assert.Equal(t, "dimse", remote.Type)

	// defaults
	assert.Equal(t, 3, cfg.Sync.Hours)
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "smallest", cfg.Sync.Mode)
	assert.Equal(t, "AUTOSYNC", cfg.Sync.CallingAETitle)
	assert.Zero(t, cfg.Sync.FastFollow)

	require.NoError(t, cfg.Validate())

	resolved, err := cfg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "hospital_pacs", resolved.Remote.Key)
	assert.Equal(t, models.Destination{AETitle: "LOCAL_AE", Host: "10.0.0.2", Port: 4242}, resolved.Destination)
	assert.Equal(t, reconcile.ModeSmallest, resolved.Policy.Mode)
}

func TestLoadYAMLWithRemotes(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", multiYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"gerald", "main"}, cfg.RemoteKeys())
	assert.Equal(t, 6, cfg.Sync.Hours)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.True(t, cfg.Database.Enabled)

	_, err = cfg.Resolve("")
	require.Error(t, err, "two remotes need an explicit choice")
	assert.True(t, models.IsConfigurationError(err))

	resolved, err := cfg.Resolve("Gerald")
	require.NoError(t, err)
	assert.Equal(t, "Gerald", resolved.Remote.Name)
	assert.Equal(t, "ExplicitVRLittleEndian", resolved.Remote.TransferSyntax)
	assert.Equal(t, models.Destination{AETitle: "LOCAL_VPN", Host: "172.16.0.2", Port: 4243}, resolved.Destination)
	assert.Equal(t, reconcile.ModeAll, resolved.Policy.Mode)

	_, err = cfg.Resolve("nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gerald, main")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AUTOSYNC_SYNC_HOURS", "12")
	t.Setenv("AUTOSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "dicom_config.json", legacyJSON))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Sync.Hours)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestPolicyFromMaxImages(t *testing.T) {
	cfg := &Config{Sync: SyncConfig{Mode: "smallest", MaxImages: 300}}
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, reconcile.Policy{Mode: reconcile.ModeThreshold, MinImages: 300}, p)

	cfg.Sync = SyncConfig{Mode: "threshold"}
	_, err = cfg.Policy()
	assert.True(t, models.IsConfigurationError(err))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, "dicom_config.json", legacyJSON))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"local ae title", func(c *Config) { c.Local.AETitle = "" }, "local.ae_title"},
		{"local ae too long", func(c *Config) { c.Local.AETitle = "THIS_IS_WAY_TOO_LONG" }, "local.ae_title"},
		{"local port", func(c *Config) { c.Local.Port = 70000 }, "local.port"},
		{"no remotes", func(c *Config) { c.Remotes = nil }, "remotes"},
		{"dicomweb remote", func(c *Config) {
			r := c.Remotes["hospital_pacs"]
			r.Type = "dicomweb"
			c.Remotes["hospital_pacs"] = r
		}, "remotes.hospital_pacs.type"},
		{"window", func(c *Config) { c.Sync.Hours = 0 }, "sync.hours"},
		{"interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"mode", func(c *Config) { c.Sync.Mode = "largest" }, "sync.mode"},
		{"download day", func(c *Config) { c.Sync.DownloadDay = "tomorrow" }, "sync.download_day"},
		{"db driver", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Driver = "mysql"
		}, "database.driver"},
		{"cache type", func(c *Config) { c.Cache.Type = "memcached" }, "cache.type"},
		{"report bucket", func(c *Config) {
			c.Report.Enabled = true
			c.Report.Bucket = ""
		}, "report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ce *models.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLegacyKey(t *testing.T) {
	assert.Equal(t, "hospital_pacs", LegacyKey("Hospital PACS"))
	assert.Equal(t, "default", LegacyKey("  "))
}
