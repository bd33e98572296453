package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/notify"
)

type stubLLM struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text, Usage: TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (s *stubLLM) lastRequest() LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return LLMRequest{}
	}
	return s.requests[len(s.requests)-1]
}

type sentMessage struct {
	Kind     string
	Delivery whatsapp.DeliveryContext
	To       string
	Text     string
	ImageURL string
	Caption  string
}

type fakeOutbound struct {
	mu         sync.Mutex
	sent       []sentMessage
	textOK     bool
	imageOK    bool
	panicOnImg bool
}

func newFakeOutbound() *fakeOutbound {
	return &fakeOutbound{textOK: true, imageOK: true}
}

func (f *fakeOutbound) SendText(ctx context.Context, dc whatsapp.DeliveryContext, to, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Kind: "text", Delivery: dc, To: to, Text: text})
	return f.textOK
}

func (f *fakeOutbound) SendImage(ctx context.Context, dc whatsapp.DeliveryContext, to, imageURL, caption string) bool {
	if f.panicOnImg {
		panic("image channel exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Kind: "image", Delivery: dc, To: to, ImageURL: imageURL, Caption: caption})
	return f.imageOK
}

func (f *fakeOutbound) byKind(kind string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Notification
}

func (r *recordingSink) Publish(ctx context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var errStoreDown = errors.New("store unavailable")
