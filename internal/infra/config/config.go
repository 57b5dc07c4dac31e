package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"20s"`
	} `envconfig:""`

	TON struct {
		BaseURL    string        `envconfig:"TONCENTER_URL"`
		APIKey     string        `envconfig:"TON_API_KEY"`
		Collection string        `envconfig:"TON_COLLECTION_ADDRESS"`
		Timeout    time.Duration `envconfig:"TON_MINT_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Rewards struct {
		MinMessages       int `envconfig:"MIN_MESSAGES_FOR_REWARD" default:"10"`
		TopN              int `envconfig:"TOP_USERS_COUNT" default:"3"`
		ActiveChannelMin  int `envconfig:"ACTIVE_CHANNEL_MIN_MESSAGES" default:"10"`
		TopUsersLimit     int `envconfig:"TOP_USERS_LIMIT" default:"10"`
		RunWeekday        int `envconfig:"REWARDS_RUN_WEEKDAY" default:"0"`
		RunHourUTC        int `envconfig:"REWARDS_RUN_HOUR" default:"12"`
	} `envconfig:""`

	Queues struct {
		Rewards string `envconfig:"REWARDS_QUEUE_KEY" default:"reward_runs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
