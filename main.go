package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"domiflash/bot"
	"domiflash/config"
	"domiflash/db"
	"domiflash/models"
	"domiflash/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("config")
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN not set")
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(cfg, logger)
		return
	}

	if err := db.Init(cfg.Database.URL); err != nil {
		logger.WithError(err).Fatal("db")
	}
	defer db.Close()

	// Optional auto-migration for the audit trail. Set AUTO_MIGRATE=1.
	if v := strings.TrimSpace(os.Getenv("AUTO_MIGRATE")); db.Pool != nil && (v == "1" || strings.EqualFold(v, "true")) {
		if err := applyMigrations(context.Background(), false); err != nil {
			logger.WithError(err).Fatal("migrate")
		}
	}

	if len(cfg.Drivers) == 0 {
		logger.Warn("DRIVERS vacío: no se podrá asignar ningún pedido")
	}

	catalog := services.NewMenuCatalog(models.DefaultMenu())
	logger.WithField("restaurants", len(catalog.Restaurants())).Info("menú cargado")

	registry := services.NewDriverRegistry(cfg.Drivers)
	ledger := services.NewDispatchLedger()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.WithError(err).Fatal("telegram")
	}

	coordinator := services.NewCoordinator(registry, ledger, bot.NewSender(api), logger)

	// The conversational agent (order taking, pricing via
	// services.NewPricer(catalog), confirmations) is wired by deployments
	// that embed the LLM pipeline; without it customers get a fallback.
	var agent bot.Agent

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.WithError(err).Error("metrics listener")
			}
		}()
	}

	logger.WithField("drivers", len(cfg.Drivers)).Info("bot iniciado")
	bot.New(api, registry, coordinator, agent, logger).Start()
}

func runMigrate(cfg *config.Config, logger *logrus.Logger) {
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	if err := db.Init(cfg.Database.URL); err != nil {
		logger.WithError(err).Fatal("db")
	}
	defer db.Close()

	if err := applyMigrations(context.Background(), true); err != nil {
		logger.WithError(err).Fatal("migrate")
	}
}
