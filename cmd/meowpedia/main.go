package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"meowpedia/internal/app"
	"meowpedia/internal/chat"
	"meowpedia/internal/config"
	"meowpedia/internal/history"
	"meowpedia/internal/scheduler"
	"meowpedia/internal/telegram"
	"meowpedia/internal/web"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Debug(".env file not found", "err", err)
	}

	cfg := config.New()
	app.SetupLogging(cfg)
	if log.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	gw, model, err := app.NewGateway(cfg)
	if err != nil {
		log.Fatal("failed to build gateway", "err", err)
	}
	rec := app.NewRecorder(cfg)
	sessions := history.NewManager()
	svc := chat.NewService(gw, rec, "web")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bot *telegram.Bot
	if cfg.TelegramBotToken != "" {
		bot, err = telegram.New(cfg.TelegramBotToken, sessions, svc.WithFrontend("telegram"))
		if err != nil {
			log.Fatal("failed to create telegram bot", "err", err)
		}
		if cfg.ReportChatID != 0 {
			bot.EnableReports(cfg.ReportChatID, app.DailyReport(rec, time.Now))
		}
		go bot.Start(ctx)
	} else {
		log.Info("telegram disabled, TELEGRAM_BOT_TOKEN is empty")
	}

	sched := scheduler.New()
	if err := sched.AddJob("janitor", cfg.JanitorSchedule, func(context.Context) error {
		if n := sessions.EvictIdle(cfg.SessionTTL); n > 0 {
			log.Info("evicted idle conversations", "count", n, "remaining", sessions.Len())
		}
		return nil
	}); err != nil {
		log.Fatal("failed to schedule janitor", "err", err)
	}
	report := app.DailyReport(rec, time.Now)
	if err := sched.AddJob("daily-report", cfg.ReportSchedule, func(ctx context.Context) error {
		text, err := report(ctx)
		if err != nil {
			return err
		}
		log.Info("daily report", "summary", text)
		if bot != nil && cfg.ReportChatID != 0 {
			return bot.Notify(cfg.ReportChatID, text)
		}
		return nil
	}); err != nil {
		log.Fatal("failed to schedule daily report", "err", err)
	}
	sched.Start()

	srv := web.NewServer(cfg.HTTPAddr, sessions, svc, model)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	log.Info("meowpedia started", "provider", cfg.LLMProvider, "model", model, "addr", cfg.HTTPAddr)
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if err != nil {
			log.Error("web server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("web server shutdown", "err", err)
	}
	sched.Stop()
}
