package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
)

// LambdaFunc is the signature lambda.Start expects for API Gateway proxy events
type LambdaFunc func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// LambdaHandler adapts the router to API Gateway proxy requests. Errors are
// always reported through the status code, never as a Lambda invocation error.
func LambdaHandler(router Router, logger *slog.Logger) LambdaFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		requestID := request.RequestContext.RequestID
		if requestID == "" {
			requestID = logging.NewRequestID()
		}
		ctx = logging.WithRequestID(ctx, requestID)
		log := logging.FromContext(ctx, logger)
		log.Info("received slack request", "path", request.Path, "method", request.HTTPMethod)

		if request.HTTPMethod == http.MethodGet && request.Path == HealthPath {
			return jsonResponse(http.StatusOK, healthBody()), nil
		}

		body := []byte(request.Body)
		if request.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(request.Body)
			if err != nil {
				log.Warn("failed to decode base64 body", "error", err)
				kind := apperr.InvalidPayload
				return jsonResponse(kind.StatusCode(), models.ErrorResponse{Error: kind.String(), Message: "Invalid request body"}), nil
			}
			body = decoded
		}

		resp := router.Route(ctx, body, toHeader(request))
		return jsonResponse(resp.StatusCode, resp.Body), nil
	}
}

// toHeader canonicalizes API Gateway headers so lookups are case-insensitive
func toHeader(request events.APIGatewayProxyRequest) http.Header {
	h := http.Header{}
	for k, values := range request.MultiValueHeaders {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	for k, v := range request.Headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
	return h
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal_error","message":"Internal server error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(data),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
