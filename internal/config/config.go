// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек бота
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	CharactersPath          string `yaml:"characters_path" env-default:"./characters.json"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RabbitConnection        `yaml:"rabbit_connection"`
	Telegram                `yaml:"telegram"`
	YooKassa                `yaml:"yookassa"`
	OpenRouter              `yaml:"openrouter"`
	Limits                  `yaml:"limits"`
}

// HTTPServer структура для настройки сервера (webhook платежей, метрики, админка)
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AdminToken  string        `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitConnection структура для настройки подключения к RabbitMQ
type RabbitConnection struct {
	AddressRabbit string        `yaml:"addressrabbit"`
	Retries       int           `yaml:"retries" env-default:"5"`
	RetryDelay    time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// Telegram структура с токеном бота для доставки сообщений
type Telegram struct {
	Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
}

// YooKassa структура с учетными данными платежного провайдера
type YooKassa struct {
	ShopID        string `yaml:"shop_id" env:"YOOKASSA_SHOP_ID"`
	SecretKey     string `yaml:"secret_key" env:"YOOKASSA_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"YOOKASSA_WEBHOOK_SECRET"`
	ReturnURL     string `yaml:"return_url" env-default:"https://t.me/dreamgf_ru_bot"`
}

// OpenRouter структура с настройками генерации контента
type OpenRouter struct {
	APIKey       string        `yaml:"api_key" env:"OPENROUTER_API_KEY"`
	TextModel    string        `yaml:"text_model" env-default:"deepseek/deepseek-r1-abliterated"`
	ImageModel   string        `yaml:"image_model" env-default:"black-forest-labs/flux-dev"`
	TextTimeout  time.Duration `yaml:"text_timeout" env-default:"25s"`
	ImageTimeout time.Duration `yaml:"image_timeout" env-default:"25s"`
	VoiceTimeout time.Duration `yaml:"voice_timeout" env-default:"25s"`
}

// Limits структура с лимитами частоты запросов и дневной квотой фото
type Limits struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env-default:"30"`
	DailyPhotoLimit    int `yaml:"daily_photo_limit" env-default:"3"`
}

// Лимиты триала и времена жизни счетчиков фиксированы продуктом,
// в конфиг не выносятся.
const (
	TrialMessageLimit = 10
	ChatHistoryLimit  = 50
	ChatHistoryTTL    = 30 * 24 * time.Hour
	ContentCacheTTL   = 24 * time.Hour
	PhotoCounterTTL   = 24 * time.Hour
	RateCounterTTL    = time.Minute
)

// MustLoad функция для загрузки конфига, путь берется из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	if cfg.YooKassa.ShopID == "" || cfg.YooKassa.SecretKey == "" {
		log.Fatal("yookassa credentials are not set")
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitConnection:\n"+
			"  Addr: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Limits:\n"+
			"  RateLimitPerMinute: %d\n"+
			"  DailyPhotoLimit: %d\n",
		c.Env,
		c.StorageConnectionString,
		c.AddressRedis,
		c.DB,
		c.AddressRabbit,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RateLimitPerMinute,
		c.DailyPhotoLimit,
	)
}
