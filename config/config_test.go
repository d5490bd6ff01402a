package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, "gorm", cfg.Database.Engine)
	assert.Equal(t, 30*time.Second, cfg.Session.ReconnectGrace)
	assert.Equal(t, 3, cfg.Game.WordChoices)
	assert.Equal(t, 5, cfg.Chat.Chat.Limit)
	assert.Equal(t, 10*time.Second, cfg.Chat.Chat.Cooldown)
	assert.Equal(t, 6, cfg.Room.InviteCodeLength)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  http_address: ":9000"
game:
  rounds: 5
  word_select_time: 20s
chat:
  chat:
    limit: 3
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddress)
	assert.Equal(t, 5, cfg.Game.Rounds)
	assert.Equal(t, 20*time.Second, cfg.Game.WordSelectTime)
	assert.Equal(t, 3, cfg.Chat.Chat.Limit)
	// untouched keys keep their defaults
	assert.Equal(t, 80, cfg.Game.DrawTime)
	assert.Same(t, cfg, Get())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Engine = "sql"
	cfg.Database.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Game.WordChoices = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Session.ReconnectGrace = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = ""
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=doodle sslmode=disable", cfg.Database.PostgresDSN())

	cfg.Database.DSN = "postgres://u:p@db/doodle"
	assert.Equal(t, "postgres://u:p@db/doodle", cfg.Database.PostgresDSN())
}
