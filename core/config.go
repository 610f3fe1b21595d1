package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string   `yaml:"env" env:"ENV" env-default:"local"`
	Listen      string   `yaml:"listen" env:"LISTEN" env-default:":8100"`
	CorsOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:3000"`
	Gemini      struct {
		ApiKey            string `yaml:"api_key" env:"GEMINI_API_KEY" env-default:""`
		Model             string `yaml:"model" env:"GEMINI_MODEL_NAME" env-default:"gemini-1.5-pro-002"`
		BaseURL           string `yaml:"base_url" env:"GEMINI_BASE_URL" env-default:""`
		DocumentPath      string `yaml:"document_path" env:"DOCUMENT_PATH" env-default:""`
		CacheTTL          string `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"300s"`
		CacheMetadataFile string `yaml:"cache_metadata_file" env:"CACHE_METADATA_FILE" env-default:"cache_metadata.json"`
		CacheDisplayName  string `yaml:"cache_display_name" env-default:"Bank Information"`
	} `yaml:"gemini"`
	Limits struct {
		MaxRequestsPerDay    int `yaml:"max_requests_per_day" env:"MAX_REQUESTS_PER_DAY" env-default:"100"`
		MaxIdleSeconds       int `yaml:"max_idle_seconds" env:"MAX_DURATION_AFTER_LAST_MESSAGE" env-default:"3600"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds" env:"SWEEP_INTERVAL" env-default:"300"`
	} `yaml:"limits"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGODB_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGODB_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGODB_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGODB_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGODB_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGODB_DB" env-default:""`
	} `yaml:"mongo"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		ApiKey   string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
		Username string `yaml:"username" env-default:""`
	} `yaml:"telegram"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return conf
}
