package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/silo-sidecar/internal/api/http"
	"github.com/EternisAI/silo-sidecar/internal/db"
	grpctls "github.com/EternisAI/silo-sidecar/internal/grpc/tls"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	STORE_DRIVER_MEMORY   = "memory"
	STORE_DRIVER_POSTGRES = "postgres"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Http      http.Config     `mapstructure:"http"`
	Grpc      GrpcConfig      `mapstructure:"grpc"`
	Store     StoreConfig     `mapstructure:"store"`
	DB        db.Config       `mapstructure:"db"`
	Signature SignatureConfig `mapstructure:"signature"`
}

type GrpcConfig struct {
	Port int            `mapstructure:"port"`
	TLS  grpctls.Config `mapstructure:"tls"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type SignatureConfig struct {
	KeyDir           string        `mapstructure:"key_dir"`
	Generate         bool          `mapstructure:"generate"`
	KeyBits          int           `mapstructure:"key_bits"`
	KeyCheckInterval time.Duration `mapstructure:"key_check_interval"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-sidecar-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("store.driver", STORE_DRIVER_MEMORY)
	viper.SetDefault("signature.key_bits", 2048)
	viper.SetDefault("signature.key_check_interval", "30s")

	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")
	_ = viper.BindEnv("db.url", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	if err := validateConfig(config); err != nil {
		panic(err)
	}

	initLogger(config.Log)

	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		if redacted.Http.AdminAPIKey != "" {
			redacted.Http.AdminAPIKey = "<redacted>"
		}
		if redacted.DB.Url != "" {
			redacted.DB.Url = "<redacted>"
		}
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Store.Driver {
	case STORE_DRIVER_MEMORY:
	case STORE_DRIVER_POSTGRES:
		if cfg.DB.Url == "" {
			return fmt.Errorf("db.url is required for the %s store", STORE_DRIVER_POSTGRES)
		}
	default:
		return fmt.Errorf("unknown store driver %q (valid: %s, %s)", cfg.Store.Driver, STORE_DRIVER_MEMORY, STORE_DRIVER_POSTGRES)
	}
	if cfg.Signature.KeyDir == "" {
		return fmt.Errorf("signature.key_dir is required")
	}
	return nil
}
