package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COUP_SERVER_HTTP_ADDRESS.
const EnvPrefix = "COUP"

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	HTTP            HTTPConfig      `mapstructure:"http"`
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

type WebSocketConfig struct {
	ReadBufferSize  int      `mapstructure:"read_buffer_size"`
	WriteBufferSize int      `mapstructure:"write_buffer_size"`
	SendBuffer      int      `mapstructure:"send_buffer"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// GameConfig holds the table rules applied to every room.
type GameConfig struct {
	ResponseWindow time.Duration `mapstructure:"response_window"`
	MinimumPlayers int           `mapstructure:"minimum_players"`
	MaximumPlayers int           `mapstructure:"maximum_players"`
	StartingCoins  int           `mapstructure:"starting_coins"`
	CardsPerPlayer int           `mapstructure:"cards_per_player"`
	RoomCodeLength int           `mapstructure:"room_code_length"`

	// IdleRoomTimeout removes rooms nobody joined within this long.
	IdleRoomTimeout time.Duration `mapstructure:"idle_room_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// DatabaseConfig enables results persistence when URL is set.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// Load reads configuration from path, then applies COUP_* environment
// overrides. A missing file is not an error; defaults cover every key.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.send_buffer", 64)
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("game.response_window", 10*time.Second)
	v.SetDefault("game.minimum_players", 2)
	v.SetDefault("game.maximum_players", 6)
	v.SetDefault("game.starting_coins", 2)
	v.SetDefault("game.cards_per_player", 2)
	v.SetDefault("game.room_code_length", 4)
	v.SetDefault("game.idle_room_timeout", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
}

// Validate checks the values Load cannot default away.
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.ResponseWindow <= 0:
		return fmt.Errorf("game.response_window must be positive, got %s", g.ResponseWindow)
	case g.MinimumPlayers < 2:
		return fmt.Errorf("game.minimum_players must be at least 2, got %d", g.MinimumPlayers)
	case g.MaximumPlayers < g.MinimumPlayers:
		return fmt.Errorf("game.maximum_players (%d) is below game.minimum_players (%d)", g.MaximumPlayers, g.MinimumPlayers)
	case g.MaximumPlayers > 6:
		return fmt.Errorf("game.maximum_players must be at most 6, got %d", g.MaximumPlayers)
	case g.StartingCoins < 0:
		return fmt.Errorf("game.starting_coins must not be negative, got %d", g.StartingCoins)
	case g.CardsPerPlayer < 1:
		return fmt.Errorf("game.cards_per_player must be at least 1, got %d", g.CardsPerPlayer)
	case g.RoomCodeLength < 1 || g.RoomCodeLength > 16:
		return fmt.Errorf("game.room_code_length must be between 1 and 16, got %d", g.RoomCodeLength)
	case g.IdleRoomTimeout <= 0:
		return fmt.Errorf("game.idle_room_timeout must be positive, got %s", g.IdleRoomTimeout)
	}
	if c.Replay.Enabled && c.Replay.Directory == "" {
		return errors.New("replay.directory is required when replay.enabled is set")
	}
	return nil
}
