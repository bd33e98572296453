package conversation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ActionKind is the wire tag of an action directive.
type ActionKind string

const (
	ActionRecommend           ActionKind = "recommend"
	ActionGatherInfo          ActionKind = "gather_info"
	ActionScheduleAppointment ActionKind = "schedule_appointment"
	ActionProvideInfo         ActionKind = "provide_info"
	ActionNone                ActionKind = "none"
)

// Action is the closed set of directives the model can declare. Only the types
// in this file implement it.
type Action interface {
	Kind() ActionKind
	isAction()
}

// Recommend asks for catalog items to be shown to the correspondent.
type Recommend struct {
	ItemIDs []int64
	Reason  string
}

// GatherInfo signals the model is collecting a profile field. When Value is
// set the field was stated by the correspondent.
type GatherInfo struct {
	Field    string
	Question string
	Value    string
}

// ScheduleAppointment carries a candidate slot as separate date and time strings.
type ScheduleAppointment struct {
	PreferredDate string
	PreferredTime string
}

type ProvideInfo struct {
	Topic   string
	Details string
}

// NoAction is "none" or an unrecognized tag, kept in Tag for logging.
type NoAction struct {
	Tag string
}

func (Recommend) Kind() ActionKind           { return ActionRecommend }
func (GatherInfo) Kind() ActionKind          { return ActionGatherInfo }
func (ScheduleAppointment) Kind() ActionKind { return ActionScheduleAppointment }
func (ProvideInfo) Kind() ActionKind         { return ActionProvideInfo }
func (NoAction) Kind() ActionKind            { return ActionNone }

func (Recommend) isAction()           {}
func (GatherInfo) isAction()          {}
func (ScheduleAppointment) isAction() {}
func (ProvideInfo) isAction()         {}
func (NoAction) isAction()            {}

// DecodeAction maps a wire tag and its open payload onto a typed Action.
// Unknown tags decode to NoAction.
func DecodeAction(tag string, data map[string]any) Action {
	switch ActionKind(strings.TrimSpace(tag)) {
	case ActionRecommend:
		ids := int64List(data["motorcycleIds"])
		if len(ids) == 0 {
			if id, ok := toInt64(data["motorcycleId"]); ok {
				ids = []int64{id}
			}
		}
		return Recommend{ItemIDs: ids, Reason: stringValue(data["reason"])}
	case ActionGatherInfo:
		return GatherInfo{
			Field:    stringValue(data["field"]),
			Question: stringValue(data["question"]),
			Value:    stringValue(data["value"]),
		}
	case ActionScheduleAppointment:
		return ScheduleAppointment{
			PreferredDate: stringValue(data["preferredDate"]),
			PreferredTime: stringValue(data["preferredTime"]),
		}
	case ActionProvideInfo:
		return ProvideInfo{Topic: stringValue(data["topic"]), Details: stringValue(data["details"])}
	case ActionNone, "":
		return NoAction{}
	default:
		return NoAction{Tag: tag}
	}
}

// actionMetadata is the JSON stored on outgoing turns.
type actionMetadata struct {
	Action     string         `json:"action"`
	ActionData map[string]any `json:"actionData,omitempty"`
}

func encodeMetadata(tag string, data map[string]any) json.RawMessage {
	if strings.TrimSpace(tag) == "" {
		tag = string(ActionNone)
	}
	raw, err := json.Marshal(actionMetadata{Action: tag, ActionData: data})
	if err != nil {
		raw, _ = json.Marshal(actionMetadata{Action: tag})
	}
	return raw
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t < math.MinInt64 || t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func int64List(v any) []int64 {
	items, ok := v.([]any)
	if !ok {
		if id, ok := toInt64(v); ok {
			return []int64{id}
		}
		return nil
	}
	out := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		id, ok := toInt64(item)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
