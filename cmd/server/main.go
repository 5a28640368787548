package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/factory"
	"github.com/trendz-app/auth-service/internal/handler"
	"github.com/trendz-app/auth-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	router := setupRouter(f)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if !cfg.Server.EnableTLS {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
	}

	startServer(f, server, cfg)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	authHandler := handler.NewAuthHandler(f.AuthService(), f.Config(), util.Get())
	return handler.NewRouter(authHandler, f.Config(), util.Get())
}

func startServer(f *factory.Factory, server *http.Server, cfg *config.Config) {
	go func() {
		var err error
		if cfg.Server.EnableTLS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server)
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
	} else {
		util.Info("Server shutdown completed")
	}

	f.Close()
}
