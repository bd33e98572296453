package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

type engineFixture struct {
	engine   *Engine
	repo     correspondents.Repository
	history  history.Store
	llm      *stubLLM
	outbound *fakeOutbound
	sink     *recordingSink
	metrics  *metrics.ConversationMetrics
	reg      *prometheus.Registry
}

type engineOption func(*EngineDeps, *EngineConfig)

func newEngineFixture(t *testing.T, llmText string, opts ...engineOption) *engineFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	f := &engineFixture{
		reg:      reg,
		repo:     correspondents.NewInMemoryRepository(),
		history:  history.NewInMemoryStore(),
		llm:      &stubLLM{text: llmText},
		outbound: newFakeOutbound(),
		sink:     &recordingSink{},
		metrics:  metrics.NewConversationMetrics(reg),
	}
	deps := EngineDeps{
		Correspondents: f.repo,
		History:        f.history,
		Catalog:        catalog.NewInMemoryRepository(testCatalogItems()...),
		LLM:            f.llm,
		Outbound:       f.outbound,
		Sink:           f.sink,
		Metrics:        f.metrics,
		Logger:         logging.Default(),
	}
	cfg := EngineConfig{HistoryWindow: 10}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	f.repo = deps.Correspondents
	f.history = deps.History
	f.engine = NewEngine(deps, cfg)
	return f
}

func inbound(from, text, wamid string) InboundMessage {
	return InboundMessage{
		SenderAddress: from,
		Text:          text,
		MessageID:     wamid,
		Timestamp:     time.Now().UTC(),
		Delivery:      whatsapp.DeliveryContext{PhoneNumberID: "pn-1", AccessToken: "tok"},
	}
}

func TestEngine_EndToEndNewCorrespondent(t *testing.T) {
	llmText := `{"message":"¡Hola! Para uso diario te recomiendo la Volt X1.","action":"recommend","actionData":{"motorcycleIds":[1]}}`
	f := newEngineFixture(t, llmText)
	ctx := context.Background()
	text := "Hola, busco una moto para uso diario con presupuesto de 5000"

	result, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", text, "wamid.1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)

	c, err := f.repo.GetByAddress(ctx, "5551234567")
	require.NoError(t, err)
	assert.NotNil(t, c.LastMessageAt)
	assert.Equal(t, correspondents.StateRecommending, c.State)

	turns, err := f.history.Recent(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.DirectionIncoming, turns[0].Direction)
	assert.Equal(t, history.SenderCorrespondent, turns[0].Sender)
	assert.Equal(t, text, turns[0].Content)
	assert.Equal(t, "wamid.1", turns[0].WhatsAppMessageID)
	assert.Equal(t, history.DirectionOutgoing, turns[1].Direction)
	assert.Equal(t, "¡Hola! Para uso diario te recomiendo la Volt X1.", turns[1].Content)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(turns[1].Metadata, &meta))
	assert.Equal(t, "recommend", meta["action"])

	req := f.llm.lastRequest()
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0], "Volt X1")
	assert.Contains(t, req.System[0], "Cliente nuevo")
	assert.Equal(t, []ChatMessage{{Role: ChatRoleUser, Content: text}}, req.Messages)

	texts := f.outbound.byKind("text")
	require.Len(t, texts, 1)
	assert.Equal(t, "5551234567", texts[0].To)
	assert.Equal(t, "¡Hola! Para uso diario te recomiendo la Volt X1.", texts[0].Text)
	assert.Equal(t, "tok", texts[0].Delivery.AccessToken)
	assert.Len(t, f.outbound.byKind("image"), 1)

	assert.Equal(t, []string{notify.TypeMessageReceived, notify.TypeMessageSent}, f.sink.types())
	assert.Equal(t, int64(1), metrics.TakeSnapshot(f.reg).Turns[OutcomeDelivered])
}

func TestEngine_NewCorrespondentStartsInitial(t *testing.T) {
	f := newEngineFixture(t, `{"message":"¡Hola Ana!","action":"none"}`)

	msg := inbound("+52 (555) 123-4567", "Hola", "wamid.1")
	msg.DisplayName = "Ana"
	result, err := f.engine.HandleInboundMessage(context.Background(), msg)
	require.NoError(t, err)

	c, err := f.repo.GetByAddress(context.Background(), "525551234567")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, correspondents.StateInitial, c.State)
	assert.Equal(t, correspondents.StateInitial, result.State)
}

func TestEngine_MalformedOutputPersistsRawText(t *testing.T) {
	raw := "Claro, te ayudo con gusto. ¿Cuál es tu presupuesto?"
	f := newEngineFixture(t, raw)
	ctx := context.Background()

	_, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", "Hola", "wamid.1"))
	require.NoError(t, err)

	c, _ := f.repo.GetByAddress(ctx, "5551234567")
	turns, _ := f.history.Recent(ctx, c.ID, 10)
	require.Len(t, turns, 2)
	assert.Equal(t, raw, turns[1].Content)
	assert.JSONEq(t, `{"action":"none"}`, string(turns[1].Metadata))
	assert.Equal(t, raw, f.outbound.byKind("text")[0].Text)
}

func TestEngine_RecommendWithoutImagesStillDeliversText(t *testing.T) {
	f := newEngineFixture(t, `{"message":"Mira la Trail E2","action":"recommend","actionData":{"motorcycleIds":[2]}}`)

	result, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "algo off-road", "wamid.1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDelivered, result.Outcome)
	assert.Empty(t, f.outbound.byKind("image"))
	require.Len(t, f.outbound.byKind("text"), 1)
}

func TestEngine_HistoryWindowHoldsKMostRecent(t *testing.T) {
	const k = 4
	f := newEngineFixture(t, `{"message":"ok"}`, func(_ *EngineDeps, cfg *EngineConfig) { cfg.HistoryWindow = k })
	ctx := context.Background()

	c, _, err := f.repo.GetOrCreate(ctx, "5551234567", "")
	require.NoError(t, err)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		sender := history.SenderCorrespondent
		if i%2 == 1 {
			sender = history.SenderAssistant
		}
		require.NoError(t, f.history.Append(ctx, &history.Turn{
			CorrespondentID: c.ID,
			Sender:          sender,
			Content:         fmt.Sprintf("turn %d", i),
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err = f.engine.HandleInboundMessage(ctx, inbound("5551234567", "nuevo", "wamid.8"))
	require.NoError(t, err)

	assert.Equal(t, []ChatMessage{
		{Role: ChatRoleUser, Content: "turn 4"},
		{Role: ChatRoleAssistant, Content: "turn 5"},
		{Role: ChatRoleUser, Content: "turn 6"},
		{Role: ChatRoleUser, Content: "nuevo"},
	}, f.llm.lastRequest().Messages)
}

func TestEngine_LLMFailureSendsNothing(t *testing.T) {
	f := newEngineFixture(t, "")
	f.llm.err = errors.New("gateway down")
	ctx := context.Background()

	result, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", "Hola", "wamid.1"))
	require.Error(t, err)
	assert.Equal(t, OutcomeLLMFailed, result.Outcome)
	assert.Empty(t, f.outbound.sent)

	c, _ := f.repo.GetByAddress(ctx, "5551234567")
	turns, _ := f.history.Recent(ctx, c.ID, 10)
	assert.Len(t, turns, 1)
}

func TestEngine_ZeroTemperaturePassedThrough(t *testing.T) {
	f := newEngineFixture(t, `{"message":"hola"}`, func(_ *EngineDeps, cfg *EngineConfig) {
		cfg.Temperature = 0
		cfg.MaxTokens = 256
	})

	_, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "Hola", "wamid.1"))
	require.NoError(t, err)
	require.Len(t, f.llm.requests, 1)
	assert.Equal(t, float32(0), f.llm.requests[0].Temperature)
	assert.Equal(t, int32(256), f.llm.requests[0].MaxTokens)
}

func TestEngine_EmptyLLMTextSendsNothing(t *testing.T) {
	f := newEngineFixture(t, "")

	result, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "Hola", "wamid.1"))
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, OutcomeLLMFailed, result.Outcome)
	assert.Empty(t, f.outbound.sent)
}

func TestEngine_DuplicateMessageHandledOnce(t *testing.T) {
	f := newEngineFixture(t, `{"message":"hola"}`)
	ctx := context.Background()

	first, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", "Hola", "wamid.dup"))
	require.NoError(t, err)
	second, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", "Hola", "wamid.dup"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDelivered, first.Outcome)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Len(t, f.llm.requests, 1)
	assert.Len(t, f.outbound.byKind("text"), 1)
}

func TestEngine_InvalidAddress(t *testing.T) {
	f := newEngineFixture(t, `{"message":"hola"}`)

	result, err := f.engine.HandleInboundMessage(context.Background(), inbound("abc", "Hola", "wamid.1"))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, OutcomeInvalid, result.Outcome)
	assert.Empty(t, f.llm.requests)
}

func TestEngine_StoresUnavailableStillReply(t *testing.T) {
	f := newEngineFixture(t, `{"message":"¿Cuál es tu presupuesto?","action":"gather_info","actionData":{"field":"budget","value":"5000"}}`,
		func(deps *EngineDeps, _ *EngineConfig) {
			deps.Correspondents = downCorrespondents{}
			deps.History = downHistory{}
		})

	result, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "Hola", "wamid.1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeDelivered, result.Outcome)
	assert.Empty(t, result.CorrespondentID)
	texts := f.outbound.byKind("text")
	require.Len(t, texts, 1)
	assert.Equal(t, "¿Cuál es tu presupuesto?", texts[0].Text)
	assert.Equal(t, []ChatMessage{{Role: ChatRoleUser, Content: "Hola"}}, f.llm.lastRequest().Messages)
}

func TestEngine_HistoryLoadFailureUsesInboundOnly(t *testing.T) {
	f := newEngineFixture(t, `{"message":"hola"}`, func(deps *EngineDeps, _ *EngineConfig) {
		deps.History = recentFailsHistory{Store: history.NewInMemoryStore()}
	})

	_, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "Hola", "wamid.1"))
	require.NoError(t, err)
	assert.Equal(t, []ChatMessage{{Role: ChatRoleUser, Content: "Hola"}}, f.llm.lastRequest().Messages)
}

func TestEngine_DeliveryFailureIsReported(t *testing.T) {
	f := newEngineFixture(t, `{"message":"hola"}`)
	f.outbound.textOK = false

	result, err := f.engine.HandleInboundMessage(context.Background(), inbound("5551234567", "Hola", "wamid.1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeliveryFailed, result.Outcome)
	assert.Equal(t, []string{notify.TypeMessageReceived}, f.sink.types())
}

func TestEngine_ValidSlotMovesToScheduling(t *testing.T) {
	f := newEngineFixture(t, `{"message":"Te espero","action":"schedule_appointment","actionData":{"preferredDate":"2026-03-04","preferredTime":"14:00"}}`)
	ctx := context.Background()

	result, err := f.engine.HandleInboundMessage(ctx, inbound("5551234567", "el miércoles a las 2", "wamid.1"))
	require.NoError(t, err)
	assert.Equal(t, correspondents.StateScheduling, result.State)
	assert.Contains(t, f.sink.types(), notify.TypeAppointmentProposed)

	c, _ := f.repo.GetByAddress(ctx, "5551234567")
	assert.Equal(t, correspondents.StateScheduling, c.State)
}

type downCorrespondents struct{}

func (downCorrespondents) GetByAddress(context.Context, string) (*correspondents.Correspondent, error) {
	return nil, errStoreDown
}
func (downCorrespondents) GetByID(context.Context, string) (*correspondents.Correspondent, error) {
	return nil, errStoreDown
}
func (downCorrespondents) GetOrCreate(context.Context, string, string) (*correspondents.Correspondent, bool, error) {
	return nil, false, errStoreDown
}
func (downCorrespondents) UpdateProfile(context.Context, string, correspondents.ProfileUpdate) error {
	return errStoreDown
}
func (downCorrespondents) SetState(context.Context, string, correspondents.State) error {
	return errStoreDown
}
func (downCorrespondents) Touch(context.Context, string, time.Time) error { return errStoreDown }
func (downCorrespondents) List(context.Context, correspondents.ListFilter) ([]*correspondents.Correspondent, error) {
	return nil, errStoreDown
}

type downHistory struct{}

func (downHistory) Append(context.Context, *history.Turn) error { return errStoreDown }
func (downHistory) Recent(context.Context, string, int) ([]history.Turn, error) {
	return nil, errStoreDown
}
func (downHistory) List(context.Context, string, int) ([]history.Turn, error) {
	return nil, errStoreDown
}

type recentFailsHistory struct {
	history.Store
}

func (recentFailsHistory) Recent(context.Context, string, int) ([]history.Turn, error) {
	return nil, errStoreDown
}
