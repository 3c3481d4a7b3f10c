package main

import (
	"context"
	"log"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/jun/socialnet/internal/app"
	"github.com/jun/socialnet/internal/config"
	"github.com/jun/socialnet/internal/logger"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	zl        *zap.Logger
)

// init builds the router of the service named by SERVICE_NAME once per
// cold start.
func init() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Service == "" {
		log.Fatal("SERVICE_NAME must be set to data, auth, user or push")
	}
	zl, err = logger.New(cfg.LogLevel, cfg.DevMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	application, err := app.NewApp(ctx, cfg, zl, cfg.Service)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	router, err := application.Router(ctx, cfg.Service)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}
	chiLambda = chiadapter.NewV2(router)
}

func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)
	if err != nil {
		zl.Error("Lambda proxy failed",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("operation", operationName(req.RequestContext.HTTP.Path)),
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Error(err),
		)
	}
	return resp, err
}

// operationName is the first path segment; the rest may hold a token.
func operationName(path string) string {
	op, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	return op
}

func main() {
	lambda.Start(Handler)
}
