package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/charmbracelet/log"
)

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string      `env:"API_KEY"`
	GeminiModel      string      `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiBaseURL    string      `env:"GEMINI_BASE_URL"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Persona and request shaping
	PersonaPromptPath string  `env:"PERSONA_PROMPT_PATH"`
	HistoryLimit      int     `env:"HISTORY_LIMIT" envDefault:"0"`
	Temperature       float32 `env:"TEMPERATURE" envDefault:"0.7"`

	// Web front-end
	HTTPAddr   string        `env:"HTTP_ADDR" envDefault:":8080"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"2h"`

	// Telegram front-end, disabled when the token is empty
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ReportChatID     int64  `env:"REPORT_CHAT_ID"`

	// Storage
	TranscriptPath string `env:"TRANSCRIPT_PATH" envDefault:"logs/turns.jsonl"`

	// Scheduled jobs
	JanitorSchedule string `env:"JANITOR_SCHEDULE" envDefault:"@every 10m"`
	ReportSchedule  string `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatal("failed to parse config", "err", err)
	}
	return cfg
}
