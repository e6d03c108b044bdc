package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/filecoin-faucet/internal/config"
	"github.com/imrishuroy/filecoin-faucet/internal/handlers"
	"github.com/imrishuroy/filecoin-faucet/internal/logging"
)

func setupRouter(svc handlers.FaucetService, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterFaucetRoutes(r, svc, logger)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	app, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build faucet", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	r := setupRouter(app.Service, logger)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		logger.Info("running local server", "addr", cfg.HTTPAddr, "networks", app.NetworkIDs())
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Error("failed to run local server", "error", err)
			os.Exit(1)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
