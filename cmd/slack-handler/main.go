package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/savaki/slack-dify-bot/pkg/app"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/server"
)

// The app is built once per cold start so the conversation store and HTTP
// connections survive across warm invocations.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Lambda freezes the sandbox once the handler returns, so slash
	// command answers cannot outlive the request.
	cfg.AsyncSlashCommands = false

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	lambda.Start(server.LambdaHandler(a.Router, logger))
}
