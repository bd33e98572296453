package whatsapp

import "time"

// BusinessAccountObject is the only webhook object type the handler accepts.
const BusinessAccountObject = "whatsapp_business_account"

// WebhookEvent is the top-level structure of a WhatsApp Cloud API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value is the payload of a "messages" change.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to inbound messages.
type Contact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

type ContactProfile struct {
	Name string `json:"name"`
}

// Message is one inbound message. Timestamp is unix seconds encoded as a string.
type Message struct {
	From      string    `json:"from"`
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *TextBody `json:"text,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
}

// ParsedInboundMessage is a normalized inbound text message.
type ParsedInboundMessage struct {
	From          string
	MessageID     string
	Text          string
	Timestamp     time.Time
	DisplayName   string
	PhoneNumberID string
}

// DeliveryContext carries what is needed to reply through the Cloud API.
type DeliveryContext struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"-"`
}

// SendRequest is the payload for POST /{phone-number-id}/messages.
type SendRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	RecipientType    string     `json:"recipient_type"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             *SendText  `json:"text,omitempty"`
	Image            *SendImage `json:"image,omitempty"`
}

type SendText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type SendImage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// SendResponse is the Graph API response to a send request.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is a Graph API error object.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}
