package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"party_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"party_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"party_db"`

	JwtSecret string `env:"JWT_SECRET,required,notEmpty" validate:"min=8"`
	JwtIssuer string `env:"JWT_ISSUER"`

	ChatHistoryLimit  int   `env:"CHAT_HISTORY_LIMIT"   envDefault:"100"   validate:"min=1,max=10000"`
	WsMaxMessageBytes int64 `env:"WS_MAX_MESSAGE_BYTES" envDefault:"65536" validate:"min=512"`
	WsSendBuffer      int   `env:"WS_SEND_BUFFER"       envDefault:"256"   validate:"min=1"`
	WsReportErrors    bool  `env:"WS_REPORT_ERRORS"     envDefault:"false"`

	LiveSyncInterval time.Duration `env:"LIVE_SYNC_INTERVAL" envDefault:"10s" validate:"min=1s"`
	LiveSyncTTL      time.Duration `env:"LIVE_SYNC_TTL"      envDefault:"30s" validate:"gtfield=LiveSyncInterval"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that env tags cannot express.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
