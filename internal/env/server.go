package environment

import (
	"context"
	"log/slog"
	"net/http"

	"gymbill/internal/config"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		API           *http.Server
	}
}

func newServers(ctx context.Context, cfg config.Config, logger *slog.Logger, services *Services) *Servers {
	var servers Servers

	servers.HTTP.API = &http.Server{
		Addr:              cfg.API.ADDR(),
		Handler:           services.APIHandlers.Router(),
		ReadTimeout:       cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
	}
	servers.HTTP.Observability = initObservability(ctx, logger.WithGroup("http"), cfg)

	return &servers
}
