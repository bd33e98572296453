package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

var businessLoc = time.FixedZone("CST", -6*60*60)

type dispatchFixture struct {
	dispatcher *ActionDispatcher
	outbound   *fakeOutbound
	repo       *correspondents.InMemoryRepository
	sink       *recordingSink
	target     DispatchTarget
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	repo := correspondents.NewInMemoryRepository()
	c, _, err := repo.GetOrCreate(context.Background(), "5551234567", "")
	require.NoError(t, err)

	out := newFakeOutbound()
	sink := &recordingSink{}
	d := NewActionDispatcher(catalog.NewInMemoryRepository(testCatalogItems()...), repo, out, logging.Default(),
		WithDispatchSink(sink), WithBusinessLocation(businessLoc))
	return &dispatchFixture{
		dispatcher: d,
		outbound:   out,
		repo:       repo,
		sink:       sink,
		target: DispatchTarget{
			Correspondent: c,
			Address:       "5551234567",
			Delivery:      whatsapp.DeliveryContext{PhoneNumberID: "pn-1", AccessToken: "tok"},
			Persisted:     true,
		},
	}
}

func TestDispatchRecommendSendsImagesWithCaptions(t *testing.T) {
	f := newDispatchFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), f.target, Recommend{ItemIDs: []int64{1, 2, 99}})

	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.ImagesSent)
	images := f.outbound.byKind("image")
	require.Len(t, images, 1)
	assert.Equal(t, "https://cdn.example.com/volt.jpg", images[0].ImageURL)
	assert.Equal(t, "Volt X1 - $45000.00", images[0].Caption)
	assert.Equal(t, "5551234567", images[0].To)
	assert.Equal(t, "pn-1", images[0].Delivery.PhoneNumberID)
}

func TestDispatchRecommendWithoutImagesSendsNothing(t *testing.T) {
	f := newDispatchFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), f.target, Recommend{ItemIDs: []int64{2}})

	assert.NoError(t, res.Err)
	assert.Zero(t, res.ImagesSent)
	assert.Empty(t, f.outbound.sent)
}

func TestDispatchRecommendRecoversFromPanickingChannel(t *testing.T) {
	f := newDispatchFixture(t)
	f.outbound.panicOnImg = true

	res := f.dispatcher.Dispatch(context.Background(), f.target, Recommend{ItemIDs: []int64{1}})

	assert.Equal(t, 0, res.ImagesSent)
	assert.Equal(t, 1, res.ImagesFailed)
}

func TestDispatchGatherInfoUpdatesBudget(t *testing.T) {
	f := newDispatchFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), f.target, GatherInfo{Field: "budget", Value: "$5,000"})
	require.NoError(t, res.Err)

	stored, err := f.repo.GetByID(context.Background(), f.target.Correspondent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BudgetCents)
	assert.Equal(t, int64(500000), *stored.BudgetCents)
}

func TestDispatchGatherInfoWithoutValueIsNoop(t *testing.T) {
	f := newDispatchFixture(t)

	res := f.dispatcher.Dispatch(context.Background(), f.target, GatherInfo{Field: "budget", Question: "¿Cuál es tu presupuesto?"})

	assert.NoError(t, res.Err)
	assert.True(t, res.ProfileUpdate.Empty())
	stored, _ := f.repo.GetByID(context.Background(), f.target.Correspondent.ID)
	assert.Nil(t, stored.BudgetCents)
}

func TestDispatchGatherInfoSkipsEphemeralCorrespondent(t *testing.T) {
	f := newDispatchFixture(t)
	f.target.Persisted = false

	res := f.dispatcher.Dispatch(context.Background(), f.target, GatherInfo{Field: "usage_type", Value: "uso diario"})

	assert.NoError(t, res.Err)
	require.NotNil(t, res.ProfileUpdate.UsageType)
	stored, _ := f.repo.GetByID(context.Background(), f.target.Correspondent.ID)
	assert.Empty(t, stored.UsageType)
}

func TestDispatchScheduleAppointment(t *testing.T) {
	tests := []struct {
		name      string
		action    ScheduleAppointment
		wantSlot  bool
		wantValid bool
	}{
		{"wednesday afternoon", ScheduleAppointment{PreferredDate: "2026-03-04", PreferredTime: "14:00"}, true, true},
		{"friday closing", ScheduleAppointment{PreferredDate: "2026-03-06", PreferredTime: "18:00"}, true, false},
		{"saturday", ScheduleAppointment{PreferredDate: "2026-03-07", PreferredTime: "12:00"}, true, false},
		{"missing time", ScheduleAppointment{PreferredDate: "2026-03-04"}, false, false},
		{"garbage", ScheduleAppointment{PreferredDate: "mañana", PreferredTime: "tarde"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)

			res := f.dispatcher.Dispatch(context.Background(), f.target, tt.action)

			assert.NoError(t, res.Err)
			assert.Equal(t, tt.wantSlot, res.Slot != nil)
			assert.Equal(t, tt.wantValid, res.SlotValid)
			if tt.wantValid {
				assert.Equal(t, []string{notify.TypeAppointmentProposed}, f.sink.types())
				assert.Equal(t, businessLoc, res.Slot.Location())
			} else {
				assert.Empty(t, f.sink.types())
			}
		})
	}
}

func TestDispatchNoSideEffectActions(t *testing.T) {
	f := newDispatchFixture(t)
	for _, action := range []Action{ProvideInfo{Topic: "battery"}, NoAction{}, NoAction{Tag: "typo"}, nil} {
		res := f.dispatcher.Dispatch(context.Background(), f.target, action)
		assert.NoError(t, res.Err)
	}
	assert.Empty(t, f.outbound.sent)
	assert.Empty(t, f.sink.types())
}
