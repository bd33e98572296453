package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const maxWebhookBody = 1 << 20

// ErrInvalidObject is returned for payloads from a product other than WhatsApp Business.
var ErrInvalidObject = errors.New("whatsapp: invalid webhook object")

// MessageHandler receives each parsed inbound message.
type MessageHandler func(ctx context.Context, msg ParsedInboundMessage) error

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   MessageHandler
	logger      *logging.Logger
}

// NewWebhookHandler creates a new webhook handler. Signatures are enforced only
// when appSecret is non-empty.
func NewWebhookHandler(verifyToken, appSecret string, onMessage MessageHandler, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
		logger:      logger,
	}
}

// VerifyChallenge returns the challenge when mode and token match.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if verifyToken == "" || mode != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := VerifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.verifyToken)
	if !ok {
		h.logger.Warn("whatsapp: webhook verification failed", "mode", q.Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, challenge)
}

// HandleInbound handles POST webhook deliveries. Once the payload shape is
// valid it always answers 200, even when individual messages fail.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("whatsapp: invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messages, err := DecodeWebhook(body)
	if err != nil {
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	for _, msg := range messages {
		if h.onMessage == nil {
			continue
		}
		if err := h.onMessage(r.Context(), msg); err != nil {
			h.logger.Error("whatsapp: failed to hand off inbound message", "error", err, "message_id", msg.MessageID)
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// DecodeWebhook unmarshals body and extracts its text messages.
func DecodeWebhook(body []byte) ([]ParsedInboundMessage, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	if event.Object != BusinessAccountObject {
		return nil, ErrInvalidObject
	}
	return ParseWebhookEvent(event), nil
}

// ParseWebhookEvent extracts text messages from every entry and change. Other
// message types and delivery statuses are skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedInboundMessage {
	var messages []ParsedInboundMessage
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				name, ok := names[m.From]
				if !ok && len(v.Contacts) == 1 {
					name = v.Contacts[0].Profile.Name
				}
				messages = append(messages, ParsedInboundMessage{
					From:          m.From,
					MessageID:     m.ID,
					Text:          m.Text.Body,
					Timestamp:     parseTimestamp(m.Timestamp),
					DisplayName:   name,
					PhoneNumberID: v.Metadata.PhoneNumberID,
				})
			}
		}
	}
	return messages
}

func parseTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
