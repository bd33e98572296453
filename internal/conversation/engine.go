package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const (
	defaultHistoryWindow = 10
	defaultMaxTokens     = 1024
)

// Turn outcomes reported to metrics and job tracking.
const (
	OutcomeDelivered      = "delivered"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalid        = "invalid"
	OutcomeLLMFailed      = "llm_failed"
)

var engineTracer = otel.Tracer("moto.internal.conversation")

// ErrInvalidAddress is returned when the sender address has no digits.
var ErrInvalidAddress = errors.New("conversation: sender address has no digits")

// InboundMessage is one text message received from the channel.
type InboundMessage struct {
	SenderAddress string                   `json:"sender_address"`
	Text          string                   `json:"text"`
	DisplayName   string                   `json:"display_name,omitempty"`
	MessageID     string                   `json:"message_id,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
	Delivery      whatsapp.DeliveryContext `json:"delivery"`
}

// TurnResult summarises a handled message.
type TurnResult struct {
	Outcome         string
	CorrespondentID string
	Reply           Reply
	Dispatch        DispatchResult
	State           correspondents.State
}

// EngineConfig tunes the model request. Temperature is sent as given, so zero
// is a valid setting; a negative value leaves it to the provider.
type EngineConfig struct {
	HistoryWindow int
	Model         string
	MaxTokens     int32
	Temperature   float32
}

// Engine runs one conversation turn per inbound message.
type Engine struct {
	correspondents correspondents.Repository
	history        history.Store
	catalog        catalog.Reader
	llm            LLMClient
	dispatcher     *ActionDispatcher
	outbound       Outbound
	sink           notify.Sink
	metrics        *metrics.ConversationMetrics
	cfg            EngineConfig
	now            func() time.Time
	logger         *logging.Logger
}

// EngineDeps groups the engine collaborators.
type EngineDeps struct {
	Correspondents correspondents.Repository
	History        history.Store
	Catalog        catalog.Reader
	LLM            LLMClient
	Dispatcher     *ActionDispatcher
	Outbound       Outbound
	Sink           notify.Sink
	Metrics        *metrics.ConversationMetrics
	Logger         *logging.Logger
}

// NewEngine wires the turn pipeline. Every collaborator except Sink, Metrics
// and Logger is required.
func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	switch {
	case deps.Correspondents == nil:
		panic("conversation: correspondent repository required")
	case deps.History == nil:
		panic("conversation: history store required")
	case deps.Catalog == nil:
		panic("conversation: catalog reader required")
	case deps.LLM == nil:
		panic("conversation: llm client required")
	case deps.Outbound == nil:
		panic("conversation: outbound channel required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Sink == nil {
		deps.Sink = notify.NopSink{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewActionDispatcher(deps.Catalog, deps.Correspondents, deps.Outbound, deps.Logger,
			WithDispatchSink(deps.Sink), WithDispatchMetrics(deps.Metrics))
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Engine{
		correspondents: deps.Correspondents,
		history:        deps.History,
		catalog:        deps.Catalog,
		llm:            deps.LLM,
		dispatcher:     deps.Dispatcher,
		outbound:       deps.Outbound,
		sink:           deps.Sink,
		metrics:        deps.Metrics,
		cfg:            cfg,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         deps.Logger,
	}
}

// HandleInboundMessage runs the full turn for msg. Store failures are logged
// and the turn continues best effort. The returned error is only for callers
// that track job status; the webhook never sees it.
func (e *Engine) HandleInboundMessage(ctx context.Context, msg InboundMessage) (result TurnResult, err error) {
	ctx, span := engineTracer.Start(ctx, "conversation.turn")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversation: turn panicked: %v", r)
			result.Outcome = OutcomeLLMFailed
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("moto.turn.outcome", result.Outcome))
		span.End()
		e.metrics.ObserveTurn(result.Outcome)
	}()

	address := correspondents.NormalizeAddress(msg.SenderAddress)
	if address == "" {
		result.Outcome = OutcomeInvalid
		return result, ErrInvalidAddress
	}
	log := e.logger.With("wamid", msg.MessageID)

	correspondent, persisted := e.resolveCorrespondent(ctx, address, msg.DisplayName, log)
	result.CorrespondentID = correspondent.ID
	result.State = correspondent.State
	log = log.With("correspondent_id", correspondent.ID)

	inbound := &history.Turn{
		CorrespondentID:   correspondent.ID,
		Direction:         history.DirectionIncoming,
		Sender:            history.SenderCorrespondent,
		Content:           msg.Text,
		WhatsAppMessageID: msg.MessageID,
	}
	inboundStored := false
	if persisted {
		switch appendErr := e.history.Append(ctx, inbound); {
		case errors.Is(appendErr, history.ErrDuplicateTurn):
			log.Info("message already handled")
			result.Outcome = OutcomeDuplicate
			return result, nil
		case appendErr != nil:
			log.Error("failed to store inbound turn", "error", appendErr)
		default:
			inboundStored = true
		}
	}

	e.sink.Publish(ctx, notify.Notification{
		Type:            notify.TypeMessageReceived,
		CorrespondentID: correspondent.ID,
		Data:            map[string]any{"address": address, "text": msg.Text},
	})

	messages := e.promptMessages(ctx, correspondent.ID, persisted, inbound, inboundStored, log)

	items, catErr := e.catalog.ListActive(ctx)
	if catErr != nil {
		log.Error("failed to load catalog", "error", catErr)
		items = nil
	}

	resp, llmErr := e.llm.Complete(ctx, LLMRequest{
		Model:       e.cfg.Model,
		System:      []string{BuildSystemPrompt(items, correspondent)},
		Messages:    messages,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if llmErr != nil {
		log.Error("llm call failed, turn not delivered", "error", llmErr)
		result.Outcome = OutcomeLLMFailed
		return result, fmt.Errorf("conversation: llm: %w", llmErr)
	}
	reply, parseErr := ParseReply(resp.Text)
	if parseErr != nil {
		log.Error("llm returned no text, turn not delivered", "stop_reason", resp.StopReason)
		result.Outcome = OutcomeLLMFailed
		return result, parseErr
	}
	if !reply.Structured {
		log.Warn("llm reply was not structured, using raw text")
	}
	result.Reply = reply

	if persisted {
		outbound := &history.Turn{
			CorrespondentID: correspondent.ID,
			Direction:       history.DirectionOutgoing,
			Sender:          history.SenderAssistant,
			Content:         reply.Message,
			Metadata:        reply.Metadata(),
		}
		if err := e.history.Append(ctx, outbound); err != nil {
			log.Error("failed to store outgoing turn", "error", err)
		}
	}

	target := DispatchTarget{
		Correspondent: correspondent,
		Address:       address,
		Delivery:      msg.Delivery,
		Persisted:     persisted,
	}
	result.Dispatch = e.dispatcher.Dispatch(ctx, target, reply.Action)
	result.State = e.advanceState(ctx, correspondent, persisted, reply.Action, result.Dispatch.SlotValid, log)

	delivered := e.deliver(ctx, msg.Delivery, address, reply.Message, log)
	if delivered {
		result.Outcome = OutcomeDelivered
		e.sink.Publish(ctx, notify.Notification{
			Type:            notify.TypeMessageSent,
			CorrespondentID: correspondent.ID,
			Data:            map[string]any{"address": address, "text": reply.Message, "action": reply.ActionTag},
		})
	} else {
		result.Outcome = OutcomeDeliveryFailed
	}

	if persisted {
		if err := e.correspondents.Touch(ctx, correspondent.ID, e.now()); err != nil {
			log.Error("failed to update last activity", "error", err)
		}
	}
	return result, nil
}

// resolveCorrespondent falls back to an unsaved correspondent when the store
// is unavailable so the turn still reaches the model.
func (e *Engine) resolveCorrespondent(ctx context.Context, address, displayName string, log *logging.Logger) (*correspondents.Correspondent, bool) {
	c, created, err := e.correspondents.GetOrCreate(ctx, address, displayName)
	if err != nil || c == nil {
		log.Error("correspondent store unavailable, continuing with ephemeral correspondent", "error", err)
		return &correspondents.Correspondent{
			WhatsAppPhone: address,
			Name:          displayName,
			State:         correspondents.StateInitial,
		}, false
	}
	if created {
		log.Info("new correspondent", "correspondent_id", c.ID)
	}
	return c, true
}

// promptMessages builds the chat window from the K most recent stored turns.
// The inbound turn is stored first, so a normal window holds K-1 prior turns
// followed by the inbound text and never repeats it. When the inbound turn was
// not stored or history could not be read, the inbound text is appended after
// whatever turns were loaded.
func (e *Engine) promptMessages(ctx context.Context, correspondentID string, persisted bool, inbound *history.Turn, inboundStored bool, log *logging.Logger) []ChatMessage {
	var turns []history.Turn
	if persisted {
		recent, err := e.history.Recent(ctx, correspondentID, e.cfg.HistoryWindow)
		if err != nil {
			log.Error("failed to load history", "error", err)
		} else {
			turns = recent
		}
	}
	messages := WindowHistory(turns)

	endsWithInbound := inboundStored && len(turns) > 0 && turns[len(turns)-1].ID == inbound.ID
	if !endsWithInbound {
		messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: inbound.Content})
	}
	return messages
}

func (e *Engine) advanceState(ctx context.Context, c *correspondents.Correspondent, persisted bool, action Action, slotValid bool, log *logging.Logger) correspondents.State {
	next := NextState(c.State, action, slotValid)
	if next == c.State {
		return next
	}
	if persisted {
		if err := e.correspondents.SetState(ctx, c.ID, next); err != nil {
			log.Error("failed to update conversation state", "error", err, "state", next)
			return c.State
		}
	}
	log.Info("conversation state changed", "from", c.State, "to", next)
	c.State = next
	return next
}

func (e *Engine) deliver(ctx context.Context, dc whatsapp.DeliveryContext, address, text string, log *logging.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("reply send panicked", "panic", r)
			ok = false
		}
		e.metrics.ObserveOutbound("text", ok)
	}()
	ok = e.outbound.SendText(ctx, dc, address, text)
	if !ok {
		log.Warn("reply not delivered")
	}
	return ok
}
