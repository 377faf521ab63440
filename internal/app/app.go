// Package app wires configuration into the shared pieces both binaries use.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"meowpedia/internal/analytics"
	"meowpedia/internal/config"
	"meowpedia/internal/gateway"
	"meowpedia/internal/llm"
	"meowpedia/internal/storage"
)

// SetupLogging applies LOG_LEVEL and LOG_FORMAT to the default logger.
func SetupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn("unknown log level, using info", "level", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(log.JSONFormatter)
	}
}

// NewGateway builds the model client for the configured provider and wraps it
// in the persona gateway. The returned model name is for display.
func NewGateway(cfg *config.Config) (*gateway.Gateway, string, error) {
	client, err := llm.NewFactory(cfg).CreateClient(cfg.LLMProvider, "")
	if err != nil {
		return nil, "", err
	}
	gw := gateway.New(client,
		gateway.WithPersona(readPersona(cfg.PersonaPromptPath)),
		gateway.WithTemperature(cfg.Temperature),
		gateway.WithHistoryLimit(cfg.HistoryLimit),
	)
	return gw, modelName(cfg), nil
}

func modelName(cfg *config.Config) string {
	switch config.LLMProvider(strings.ToLower(strings.TrimSpace(string(cfg.LLMProvider)))) {
	case config.ProviderOpenAI:
		return cfg.OpenAIModel
	case config.ProviderYandex:
		return "YandexGPT"
	default:
		if cfg.GeminiModel == "" {
			return llm.DefaultGeminiModel
		}
		return cfg.GeminiModel
	}
}

// readPersona returns the override persona, or "" to keep the built-in one.
func readPersona(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("persona file unreadable, using built-in persona", "path", path, "err", err)
		return ""
	}
	return string(data)
}

// NewRecorder opens the transcript. An empty path or a failure to open it
// disables recording.
func NewRecorder(cfg *config.Config) storage.Recorder {
	if cfg.TranscriptPath == "" {
		return storage.Nop{}
	}
	fr, err := storage.NewFileRecorder(cfg.TranscriptPath)
	if err != nil {
		log.Warn("transcript disabled", "path", cfg.TranscriptPath, "err", err)
		return storage.Nop{}
	}
	return fr
}

// DailyReport builds the usage summary for the current UTC day.
func DailyReport(rec storage.Recorder, now func() time.Time) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		events, err := rec.LoadInteractions()
		if err != nil {
			return "", fmt.Errorf("load transcript: %w", err)
		}
		return analytics.AnalyzeDailyTurns(events, now().UTC()).Summary(), nil
	}
}
