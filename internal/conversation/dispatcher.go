package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/moto-assistant/internal/appointments"
	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Outbound delivers messages to a correspondent. Both methods report success
// and never return errors.
type Outbound interface {
	SendText(ctx context.Context, dc whatsapp.DeliveryContext, to, text string) bool
	SendImage(ctx context.Context, dc whatsapp.DeliveryContext, to, imageURL, caption string) bool
}

var _ Outbound = (*whatsapp.Client)(nil)

// DispatchTarget identifies who the side effects are for.
type DispatchTarget struct {
	Correspondent *correspondents.Correspondent
	Address       string
	Delivery      whatsapp.DeliveryContext
	// Persisted is false for an ephemeral correspondent that has no stored row.
	Persisted bool
}

// DispatchResult records what a dispatched action did.
type DispatchResult struct {
	ImagesSent    int
	ImagesFailed  int
	ProfileUpdate correspondents.ProfileUpdate
	Slot          *time.Time
	SlotValid     bool
	Err           error
}

// ActionDispatcher executes the side effects of an action directive.
type ActionDispatcher struct {
	catalog        catalog.Reader
	correspondents correspondents.Repository
	outbound       Outbound
	sink           notify.Sink
	metrics        *metrics.ConversationMetrics
	loc            *time.Location
	logger         *logging.Logger
}

// DispatcherOption customises an ActionDispatcher.
type DispatcherOption func(*ActionDispatcher)

func WithDispatchSink(sink notify.Sink) DispatcherOption {
	return func(d *ActionDispatcher) { d.sink = sink }
}

func WithDispatchMetrics(m *metrics.ConversationMetrics) DispatcherOption {
	return func(d *ActionDispatcher) { d.metrics = m }
}

// WithBusinessLocation sets the timezone proposed slots are read in.
func WithBusinessLocation(loc *time.Location) DispatcherOption {
	return func(d *ActionDispatcher) { d.loc = loc }
}

func NewActionDispatcher(cat catalog.Reader, repo correspondents.Repository, outbound Outbound, logger *logging.Logger, opts ...DispatcherOption) *ActionDispatcher {
	if cat == nil {
		panic("conversation: catalog reader required")
	}
	if outbound == nil {
		panic("conversation: outbound channel required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &ActionDispatcher{
		catalog:        cat,
		correspondents: repo,
		outbound:       outbound,
		sink:           notify.NopSink{},
		loc:            time.UTC,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = notify.NopSink{}
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	return d
}

// Dispatch runs the side effect for action. A failing branch is logged and
// recorded in the result; it never panics or returns an error.
func (d *ActionDispatcher) Dispatch(ctx context.Context, target DispatchTarget, action Action) (result DispatchResult) {
	if action == nil {
		action = NoAction{}
	}
	kind := string(action.Kind())
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("conversation: %s action panicked: %v", kind, r)
		}
		status := "ok"
		if result.Err != nil {
			status = "error"
			d.logger.Error("action dispatch failed", "action", kind, "correspondent_id", correspondentID(target), "error", result.Err)
		}
		d.metrics.ObserveAction(kind, status)
	}()

	switch a := action.(type) {
	case Recommend:
		result = d.recommend(ctx, target, a)
	case GatherInfo:
		result = d.gatherInfo(ctx, target, a)
	case ScheduleAppointment:
		result = d.scheduleAppointment(ctx, target, a)
	case ProvideInfo:
		d.logger.Debug("provide_info", "correspondent_id", correspondentID(target), "topic", a.Topic)
	case NoAction:
		if a.Tag != "" {
			d.logger.Warn("unknown action tag ignored", "action", a.Tag, "correspondent_id", correspondentID(target))
		}
	default:
		result.Err = fmt.Errorf("conversation: unhandled action %T", action)
	}
	return result
}

func (d *ActionDispatcher) recommend(ctx context.Context, target DispatchTarget, a Recommend) DispatchResult {
	var result DispatchResult
	var errs []error
	for _, id := range a.ItemIDs {
		item, err := d.catalog.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				errs = append(errs, fmt.Errorf("item %d: %w", id, err))
			}
			d.logger.Warn("recommended item unavailable", "item_id", id, "error", err)
			continue
		}
		if item == nil || !item.HasImage() {
			continue
		}
		if d.sendImage(ctx, target, *item) {
			result.ImagesSent++
		} else {
			result.ImagesFailed++
		}
	}
	if len(errs) > 0 {
		result.Err = errors.Join(errs...)
	}
	return result
}

// sendImage isolates one image send so a panicking channel does not stop the
// remaining items.
func (d *ActionDispatcher) sendImage(ctx context.Context, target DispatchTarget, item catalog.Item) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("image send panicked", "item_id", item.ID, "panic", r)
			ok = false
		}
		d.metrics.ObserveOutbound("image", ok)
	}()
	return d.outbound.SendImage(ctx, target.Delivery, target.Address, item.ImageURL, catalog.Caption(item))
}

func (d *ActionDispatcher) gatherInfo(ctx context.Context, target DispatchTarget, a GatherInfo) DispatchResult {
	var result DispatchResult
	if a.Field == "" || a.Value == "" {
		return result
	}
	update, ok := profileUpdateFor(a.Field, a.Value)
	if !ok {
		d.logger.Debug("gather_info field not stored", "field", a.Field)
		return result
	}
	result.ProfileUpdate = update
	if !target.Persisted || d.correspondents == nil {
		return result
	}
	if err := d.correspondents.UpdateProfile(ctx, target.Correspondent.ID, update); err != nil {
		result.Err = fmt.Errorf("update profile: %w", err)
	}
	return result
}

func (d *ActionDispatcher) scheduleAppointment(ctx context.Context, target DispatchTarget, a ScheduleAppointment) DispatchResult {
	var result DispatchResult
	if a.PreferredDate == "" || a.PreferredTime == "" {
		return result
	}
	slot, err := appointments.ParseSlot(a.PreferredDate, a.PreferredTime, d.loc)
	if err != nil {
		d.logger.Info("proposed slot unparseable", "date", a.PreferredDate, "time", a.PreferredTime, "error", err)
		return result
	}
	result.Slot = &slot
	result.SlotValid = appointments.IsValidSlot(slot)
	d.logger.Info("appointment slot evaluated",
		"correspondent_id", correspondentID(target),
		"slot", slot.Format(time.RFC3339),
		"valid", result.SlotValid,
	)
	if result.SlotValid {
		d.sink.Publish(ctx, notify.Notification{
			Type:            notify.TypeAppointmentProposed,
			CorrespondentID: correspondentID(target),
			Data: map[string]any{
				"scheduled_at": slot.Format(time.RFC3339),
				"address":      target.Address,
			},
		})
	}
	return result
}

// profileUpdateFor maps a gathered field onto the profile column it fills.
func profileUpdateFor(field, value string) (correspondents.ProfileUpdate, bool) {
	var update correspondents.ProfileUpdate
	value = strings.TrimSpace(value)
	switch normalizeField(field) {
	case "budget", "presupuesto":
		cents, ok := ParseBudget(value)
		if !ok {
			return update, false
		}
		update.BudgetCents = &cents
	case "interests", "interest", "intereses":
		update.Interests = &value
	case "usagetype", "usage", "uso", "tipodeuso":
		update.UsageType = &value
	case "email", "correo":
		update.Email = &value
	case "name", "nombre", "fullname":
		update.Name = &value
	case "phone", "telefono":
		update.Phone = &value
	default:
		return update, false
	}
	return update, true
}

func normalizeField(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	r := strings.NewReplacer("_", "", "-", "", " ", "", "é", "e")
	return r.Replace(field)
}

// ParseBudget reads a currency amount in major units ("$5,000", "5000 pesos",
// "1234.50") and returns minor units. A trailing separator followed by exactly
// two digits is treated as cents.
func ParseBudget(s string) (int64, bool) {
	var digits strings.Builder
	cents := int64(0)

	trimmed := strings.TrimSpace(s)
	if i := strings.LastIndexAny(trimmed, ".,"); i >= 0 && len(trimmed)-i-1 == 2 {
		frac := trimmed[i+1:]
		if c, err := strconv.Atoi(frac); err == nil {
			cents = int64(c)
			trimmed = trimmed[:i]
		}
	}
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	whole, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil || whole > math.MaxInt64/100-1 {
		return 0, false
	}
	return whole*100 + cents, true
}

func correspondentID(t DispatchTarget) string {
	if t.Correspondent == nil {
		return ""
	}
	return t.Correspondent.ID
}
