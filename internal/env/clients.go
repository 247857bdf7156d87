package environment

import (
	"context"
	"log/slog"

	"gymbill/internal/config"
	"gymbill/internal/infra/payhere"
	"gymbill/internal/infra/sqlite3"
	"gymbill/internal/infra/telegram"
)

type Clients struct {
	SQLiteDB       *sqlite3.DB
	PayHere        *payhere.Client
	TelegramAlerts *telegram.Client
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	payhereClient, err := providePayHereClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	telegramAlerts, err := provideTelegramAlerts(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Clients{
		SQLiteDB:       sqliteDB,
		PayHere:        payhereClient,
		TelegramAlerts: telegramAlerts,
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(cfg.DB.MaxLifetime),
	}

	return sqlite3.New(ctx, opts...)
}

func providePayHereClient(cfg config.Config, logger *slog.Logger) (*payhere.Client, error) {
	return payhere.NewClient(
		cfg.PayHere.MerchantID,
		cfg.PayHere.MerchantSecret,
		cfg.PayHere.BaseURL,
		cfg.PayHere.Timeout,
		cfg.PayHere.RateLimit.RPS,
		cfg.PayHere.RateLimit.Burst,
		logger,
	)
}

func provideTelegramAlerts(cfg config.Config, logger *slog.Logger) (*telegram.Client, error) {
	// Operator alerts are optional; without a token they degrade to logs
	if cfg.Telegram.BotToken == "" {
		return nil, nil
	}

	return telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.AlertChatIDs, logger)
}
