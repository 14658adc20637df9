package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "ride_hailing", cfg.Database.DBName)
	assert.Empty(t, cfg.Redis.Addr)
	assert.InDelta(t, 50.0, cfg.Pricing.BaseFare, 1e-9)
	assert.InDelta(t, 12.5, cfg.Pricing.PerKmRate, 1e-9)
	assert.Equal(t, 100, cfg.Audit.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Audit.FlushInterval)
	assert.Equal(t, 5*time.Second, cfg.Matching.LockTTL)
	assert.Equal(t, 2*time.Second, cfg.Matching.CandidateTTL)
	assert.Equal(t, 2*time.Second, cfg.Audit.PublishTimeout)
	assert.Equal(t, 1000, cfg.Audit.BufferSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.NewRelic.Enabled)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: memory
log:
  level: debug
  format: console
server:
  port: "9090"
pricing:
  base_fare: 30
matching:
  lock_ttl: 750ms
  candidate_ttl: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.InDelta(t, 30.0, cfg.Pricing.BaseFare, 1e-9)
	assert.InDelta(t, 12.5, cfg.Pricing.PerKmRate, 1e-9)
	assert.Equal(t, 750*time.Millisecond, cfg.Matching.LockTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Matching.CandidateTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BASE_FARE", "40")
	t.Setenv("PER_KM_RATE", "10")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("AUDIT_AMQP_URL", "amqp://guest:guest@mq:5672/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 40.0, cfg.Pricing.BaseFare, 1e-9)
	assert.InDelta(t, 10.0, cfg.Pricing.PerKmRate, 1e-9)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.Audit.AMQPURL)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Store:    StoreConfig{Driver: StoreMemory},
		Audit:    AuditConfig{BatchSize: 10},
		Matching: MatchingConfig{CandidateTTL: time.Second},
	}
	require.NoError(t, base.Validate())

	neg := base
	neg.Pricing.PerKmRate = -1
	assert.Error(t, neg.Validate())

	noBatch := base
	noBatch.Audit.BatchSize = 0
	assert.Error(t, noBatch.Validate())

	noTTL := base
	noTTL.Matching.CandidateTTL = 0
	assert.Error(t, noTTL.Validate())
}

func TestDSN(t *testing.T) {
	t.Parallel()

	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "rides", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=rides sslmode=disable", c.DSN())
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
	assert.True(t, zap.L().Core().Enabled(zap.WarnLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
