package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/wolfman30/moto-assistant/cmd/mainconfig"
	"github.com/wolfman30/moto-assistant/internal/app/bootstrap"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const webhookPath = "/webhooks/whatsapp"

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	// The lambda only ever enqueues to SQS.
	cfg.UseMemoryQueue = false
	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		panic(err)
	}
	queue, err := bootstrap.BuildQueue(cfg, &awsCfg)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		panic(err)
	}

	var jobs conversation.JobRecorder
	if store := bootstrap.BuildJobStore(cfg, &awsCfg, logger); store != nil {
		jobs = store
	}
	publisher := conversation.NewPublisher(queue, jobs, logger)
	webhook := whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, publisher.WebhookHandler(cfg.WhatsAppPhoneNumberID), logger)

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, webhook, evt)
	})
}

// handle serves the webhook contract from an API Gateway v2 event.
func handle(ctx context.Context, webhook *whatsapp.WebhookHandler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if strings.TrimRight(path, "/") != webhookPath {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}

	rw := newResponseBuffer()
	switch method {
	case http.MethodGet:
		webhook.HandleVerification(rw, req)
	case http.MethodPost:
		webhook.HandleInbound(rw, req)
	default:
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}
	return rw.toEvent(), nil
}

// responseBuffer collects a handler response for the lambda return value.
type responseBuffer struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: http.Header{}}
}

func (r *responseBuffer) Header() http.Header { return r.header }

func (r *responseBuffer) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *responseBuffer) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseBuffer) toEvent() events.APIGatewayV2HTTPResponse {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       r.body.String(),
		Headers:    map[string]string{},
	}
	if ct := r.header.Get("Content-Type"); ct != "" {
		out.Headers["content-type"] = ct
	}
	return out
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
