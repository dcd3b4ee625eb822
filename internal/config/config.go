package config

import (
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
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"min=1s"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	API     APIConfig     `mapstructure:"api"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Call    CallConfig    `mapstructure:"call"`
	Capture CaptureConfig `mapstructure:"capture"`
	Rate    RateConfig    `mapstructure:"rate"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	WSURL   string        `mapstructure:"ws_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"`
}

type ChatConfig struct {
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

type ReconnectConfig struct {
	Delay       time.Duration `mapstructure:"delay" validate:"min=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=0"`
	Exponential bool          `mapstructure:"exponential"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"min=0"`
}

type CallConfig struct {
	TokenTimeout time.Duration `mapstructure:"token_timeout" validate:"min=0"`
	JoinTimeout  time.Duration `mapstructure:"join_timeout" validate:"min=0"`
	PlayTimeout  time.Duration `mapstructure:"play_timeout" validate:"min=0"`
	ICEServers   []string      `mapstructure:"ice_servers"`
}

type CaptureConfig struct {
	AudioFile  string `mapstructure:"audio_file"`
	VideoFile  string `mapstructure:"video_file"`
	ScreenFile string `mapstructure:"screen_file"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit" validate:"min=1"`
	Interval time.Duration `mapstructure:"interval" validate:"min=1ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.ws_url", "ws://localhost:8080")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("auth.token", "")

	v.SetDefault("chat.reconnect.delay", "3s")
	v.SetDefault("chat.reconnect.max_attempts", 0)
	v.SetDefault("chat.reconnect.exponential", false)
	v.SetDefault("chat.reconnect.max_delay", "30s")

	v.SetDefault("call.token_timeout", "10s")
	v.SetDefault("call.join_timeout", "15s")
	v.SetDefault("call.play_timeout", "10s")
	v.SetDefault("call.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("rate.limit", 20)
	v.SetDefault("rate.interval", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// HUDDLE_* environment variables override both, e.g. HUDDLE_AUTH_TOKEN.
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
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("api", cfg.API.BaseURL).Msg("config ready")
	return &cfg, nil
}
