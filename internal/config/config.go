package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port       int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath string        `mapstructure:"static_path"`
	LogLevel   string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	PongWait   time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingPeriod"`
	WriteWait  time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"min=1"`

	MaxDecorations   int           `mapstructure:"max_decorations" validate:"min=1"`
	MessageCooldown  time.Duration `mapstructure:"message_cooldown" validate:"min=0"`
	RejectFeedback   bool          `mapstructure:"reject_feedback"`
	SharedCooldown   bool          `mapstructure:"shared_cooldown"`
	IdentityFallback string        `mapstructure:"identity_fallback" validate:"oneof=connection cookie"`

	MediaURL         string        `mapstructure:"media_url" validate:"omitempty,url"`
	MediaRoute       string        `mapstructure:"media_route" validate:"startswith=/"`
	MediaContentType string        `mapstructure:"media_content_type"`
	MediaTimeout     time.Duration `mapstructure:"media_timeout" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)

	v.SetDefault("max_decorations", 200)
	v.SetDefault("message_cooldown", "3s")
	v.SetDefault("reject_feedback", false)
	v.SetDefault("shared_cooldown", false)
	v.SetDefault("identity_fallback", "connection")

	v.SetDefault("media_url", "")
	v.SetDefault("media_route", "/audio/music.mp3")
	v.SetDefault("media_content_type", "audio/mpeg")
	v.SetDefault("media_timeout", "30s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, applies TREE_* environment
// overrides and validates the result. A missing file is not an error.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("TREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Int("max_decorations", cfg.MaxDecorations).Dur("cooldown", cfg.MessageCooldown).Msg("config ready")
	return &cfg, nil
}
