package conversation

import (
	"encoding/json"
	"errors"
	"strings"
)

// FallbackMessage is sent when the model returns a structured reply with no message.
const FallbackMessage = "Disculpa, no entendí bien. ¿Podrías repetir?"

// ErrEmptyResponse is returned when the gateway produced no text at all.
var ErrEmptyResponse = errors.New("conversation: empty model response")

// Reply is the parsed model output.
type Reply struct {
	Message    string
	Action     Action
	ActionTag  string
	ActionData map[string]any
	// Structured is false when the raw text was used verbatim as the message.
	Structured bool
}

// Metadata is the serialized directive stored on the outgoing turn.
func (r Reply) Metadata() json.RawMessage {
	return encodeMetadata(r.ActionTag, r.ActionData)
}

type wireReply struct {
	Message    string         `json:"message"`
	Action     string         `json:"action"`
	ActionData map[string]any `json:"actionData"`
}

// ParseReply applies the reply contract to raw model text. Text that does not
// decode as the structured object becomes the message verbatim with no action.
func ParseReply(raw string) (Reply, error) {
	if raw == "" {
		return Reply{}, ErrEmptyResponse
	}

	wire, ok := decodeWireReply(raw)
	if !ok {
		return Reply{
			Message:   raw,
			Action:    NoAction{},
			ActionTag: string(ActionNone),
		}, nil
	}

	tag := strings.TrimSpace(wire.Action)
	if tag == "" {
		tag = string(ActionNone)
	}
	if wire.ActionData == nil {
		wire.ActionData = map[string]any{}
	}
	msg := strings.TrimSpace(wire.Message)
	if msg == "" {
		msg = FallbackMessage
	}
	return Reply{
		Message:    msg,
		Action:     DecodeAction(tag, wire.ActionData),
		ActionTag:  tag,
		ActionData: wire.ActionData,
		Structured: true,
	}, nil
}

// decodeWireReply tries the text as-is, then without markdown fences, then the
// outermost {...} span.
func decodeWireReply(raw string) (wireReply, bool) {
	candidates := []string{strings.TrimSpace(raw)}
	stripped := stripCodeFences(raw)
	candidates = append(candidates, stripped)
	if start, end := strings.Index(stripped, "{"), strings.LastIndex(stripped, "}"); start >= 0 && end > start {
		candidates = append(candidates, stripped[start:end+1])
	}

	for _, candidate := range candidates {
		if !strings.HasPrefix(candidate, "{") {
			continue
		}
		var wire wireReply
		if err := json.Unmarshal([]byte(candidate), &wire); err == nil {
			return wire, true
		}
	}
	return wireReply{}, false
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
