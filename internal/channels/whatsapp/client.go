package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com"
	graphAPIVersion     = "v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

var tracer = otel.Tracer("moto.internal.channels.whatsapp")

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	graphAPIBase string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewClient creates a Cloud API client. An empty base uses graph.facebook.com.
func NewClient(graphAPIBase string, logger *logging.Logger) *Client {
	if graphAPIBase == "" {
		graphAPIBase = defaultGraphAPIBase
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		graphAPIBase: strings.TrimRight(graphAPIBase, "/"),
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:       logger,
	}
}

// SendText delivers a text message. Failures are logged and reported as false.
func (c *Client) SendText(ctx context.Context, dc DeliveryContext, to, text string) bool {
	return c.deliver(ctx, dc, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: text},
	})
}

// SendImage delivers an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, dc DeliveryContext, to, imageURL, caption string) bool {
	return c.deliver(ctx, dc, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &SendImage{Link: imageURL, Caption: caption},
	})
}

func (c *Client) deliver(ctx context.Context, dc DeliveryContext, req SendRequest) bool {
	ctx, span := tracer.Start(ctx, "whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("moto.whatsapp.type", req.Type))

	resp, err := c.send(ctx, dc, req)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("whatsapp: send failed", "error", err, "type", req.Type, "to", req.To)
		return false
	}
	msgID := ""
	if len(resp.Messages) > 0 {
		msgID = resp.Messages[0].ID
	}
	c.logger.Info("whatsapp: message sent", "type", req.Type, "to", req.To, "message_id", msgID)
	return true
}

func (c *Client) send(ctx context.Context, dc DeliveryContext, req SendRequest) (*SendResponse, error) {
	if dc.PhoneNumberID == "" || dc.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp: delivery context incomplete")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.graphAPIBase, graphAPIVersion, dc.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+dc.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sendResp); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
		}
	}
	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("whatsapp: unexpected status %d", resp.StatusCode)
	}
	return &sendResp, nil
}
