package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Session  SessionConfig  `mapstructure:"session"`
	Room     RoomConfig     `mapstructure:"room"`
	Game     GameConfig     `mapstructure:"game"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Words    WordsConfig    `mapstructure:"words"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// gorm 或 sql（lib/pq 原生 SQL）
	Engine          string         `mapstructure:"engine"`
	Driver          string         `mapstructure:"driver"`
	DSN             string         `mapstructure:"dsn"`
	Postgres        PostgresConfig `mapstructure:"postgres"`
	MaxIdleConns    int            `mapstructure:"max_idle_conns"`
	MaxOpenConns    int            `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration  `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration  `mapstructure:"query_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// PostgresDSN builds a key/value connection string unless one was configured verbatim.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	p := d.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	Issuer      string        `mapstructure:"issuer"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	ReconnectGrace    time.Duration `mapstructure:"reconnect_grace"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	FloodRate         float64       `mapstructure:"flood_rate"`
	FloodBurst        int           `mapstructure:"flood_burst"`
}

type RoomConfig struct {
	InactivityTimeout  time.Duration `mapstructure:"inactivity_timeout"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	PostGameLinger     time.Duration `mapstructure:"post_game_linger"`
	InviteCodeLength   int           `mapstructure:"invite_code_length"`
	InviteCodeAttempts int           `mapstructure:"invite_code_attempts"`
	QueueSize          int           `mapstructure:"queue_size"`
}

type GameConfig struct {
	MaxPlayers          int           `mapstructure:"max_players"`
	Rounds              int           `mapstructure:"rounds"`
	DrawTime            int           `mapstructure:"draw_time"`
	Hints               int           `mapstructure:"hints"`
	Language            string        `mapstructure:"language"`
	WordChoices         int           `mapstructure:"word_choices"`
	WordSelectTime      time.Duration `mapstructure:"word_select_time"`
	StartCountdown      time.Duration `mapstructure:"start_countdown"`
	TurnEndDelay        time.Duration `mapstructure:"turn_end_delay"`
	RoundEndDelay       time.Duration `mapstructure:"round_end_delay"`
	TimerUpdateInterval time.Duration `mapstructure:"timer_update_interval"`
	MaxStrokes          int           `mapstructure:"max_strokes"`
	MaxStrokePoints     int           `mapstructure:"max_stroke_points"`
}

type ChatConfig struct {
	MaxLength int         `mapstructure:"max_length"`
	Chat      LimitConfig `mapstructure:"chat"`
	Guess     LimitConfig `mapstructure:"guess"`
}

type LimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type WordsConfig struct {
	File string `mapstructure:"file"`
}

type MonitorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

var (
	current *Config
	mu      sync.RWMutex
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.engine", "gorm")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "doodle")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.query_timeout", 3*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "logs")
	v.SetDefault("log.file.filename", "doodle.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 7)
	v.SetDefault("log.file.max_backups", 10)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.issuer", "doodleserver")
	v.SetDefault("auth.token_expiry", 24*time.Hour)
	v.SetDefault("auth.timeout", 10*time.Second)

	v.SetDefault("session.reconnect_grace", 30*time.Second)
	v.SetDefault("session.heartbeat_interval", 25*time.Second)
	v.SetDefault("session.write_timeout", 10*time.Second)
	v.SetDefault("session.send_buffer", 256)
	v.SetDefault("session.max_message_size", 64*1024)
	v.SetDefault("session.flood_rate", 40.0)
	v.SetDefault("session.flood_burst", 80)

	v.SetDefault("room.inactivity_timeout", 10*time.Minute)
	v.SetDefault("room.sweep_interval", time.Minute)
	v.SetDefault("room.post_game_linger", 15*time.Second)
	v.SetDefault("room.invite_code_length", 6)
	v.SetDefault("room.invite_code_attempts", 5)
	v.SetDefault("room.queue_size", 256)

	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.rounds", 3)
	v.SetDefault("game.draw_time", 80)
	v.SetDefault("game.hints", 2)
	v.SetDefault("game.language", "en")
	v.SetDefault("game.word_choices", 3)
	v.SetDefault("game.word_select_time", 15*time.Second)
	v.SetDefault("game.start_countdown", 3*time.Second)
	v.SetDefault("game.turn_end_delay", 5*time.Second)
	v.SetDefault("game.round_end_delay", 5*time.Second)
	v.SetDefault("game.timer_update_interval", 5*time.Second)
	v.SetDefault("game.max_strokes", 1000)
	v.SetDefault("game.max_stroke_points", 2000)

	v.SetDefault("chat.max_length", 200)
	v.SetDefault("chat.chat.limit", 5)
	v.SetDefault("chat.chat.window", 5*time.Second)
	v.SetDefault("chat.chat.cooldown", 10*time.Second)
	v.SetDefault("chat.guess.limit", 10)
	v.SetDefault("chat.guess.window", 5*time.Second)
	v.SetDefault("chat.guess.cooldown", 5*time.Second)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.namespace", "doodle")
}

var v = viper.New()

// LoadConfig 读取 path 下的 config.yaml；文件不存在时只用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DOODLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Default returns the built-in configuration without touching disk or env.
func Default() *Config {
	d := viper.New()
	setDefaults(d)
	cfg, err := decode(d)
	if err != nil {
		panic(err)
	}
	return cfg
}

func decode(src *viper.Viper) (*Config, error) {
	var cfg Config
	if err := src.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置的基本约束
func (c *Config) Validate() error {
	switch c.Database.Engine {
	case "gorm", "sql":
	default:
		return fmt.Errorf("database.engine must be gorm or sql, got %q", c.Database.Engine)
	}
	if c.Database.Engine == "sql" && c.Database.Driver != "postgres" {
		return errors.New("database.engine sql requires database.driver postgres")
	}
	if c.Game.WordChoices < 1 {
		return errors.New("game.word_choices must be positive")
	}
	if c.Room.InviteCodeLength < 4 {
		return errors.New("room.invite_code_length must be at least 4")
	}
	if c.Chat.Chat.Limit < 1 || c.Chat.Guess.Limit < 1 {
		return errors.New("chat limits must be positive")
	}
	if c.Session.ReconnectGrace < 0 {
		return errors.New("session.reconnect_grace must not be negative")
	}
	return nil
}

// Get 返回最近一次成功加载的配置
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Watch 监听配置文件变化，重新解析成功后回调
func Watch(onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			return
		}
		mu.Lock()
		current = cfg
		mu.Unlock()
		onChange(cfg)
	})
	v.WatchConfig()
}
