package http

type Config struct {
	Port        uint       `mapstructure:"port"`
	AdminAPIKey string     `mapstructure:"admin_api_key"`
	CORS        CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}
