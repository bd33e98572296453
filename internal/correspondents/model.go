package correspondents

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no correspondent matches the lookup.
	ErrNotFound = errors.New("correspondents: not found")

	// ErrInvalidAddress is returned when an address has no digits.
	ErrInvalidAddress = errors.New("correspondents: address must contain digits")

	// ErrInvalidState is returned for values outside the state enum.
	ErrInvalidState = errors.New("correspondents: invalid conversation state")
)

// State tracks how far the sales conversation has progressed.
type State string

const (
	StateInitial       State = "initial"
	StateGatheringInfo State = "gathering_info"
	StateRecommending  State = "recommending"
	StateScheduling    State = "scheduling"
	StateCompleted     State = "completed"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInitial, StateGatheringInfo, StateRecommending, StateScheduling, StateCompleted:
		return true
	}
	return false
}

// Correspondent is a remote WhatsApp party keyed by its normalized address.
type Correspondent struct {
	ID            string     `json:"id"`
	WhatsAppPhone string     `json:"whatsapp_phone"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	BudgetCents   *int64     `json:"budget_cents,omitempty"`
	Interests     string     `json:"interests,omitempty"`
	UsageType     string     `json:"usage_type,omitempty"`
	State         State      `json:"conversation_state"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasProfile reports whether any profile field beyond the address is known.
func (c *Correspondent) HasProfile() bool {
	if c == nil {
		return false
	}
	return c.Name != "" || c.BudgetCents != nil || c.Interests != "" || c.UsageType != "" || c.Email != ""
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	Name        *string
	Email       *string
	Phone       *string
	BudgetCents *int64
	Interests   *string
	UsageType   *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.BudgetCents == nil && u.Interests == nil && u.UsageType == nil
}

func (u ProfileUpdate) apply(c *Correspondent) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Email != nil {
		c.Email = *u.Email
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	if u.BudgetCents != nil {
		v := *u.BudgetCents
		c.BudgetCents = &v
	}
	if u.Interests != nil {
		c.Interests = *u.Interests
	}
	if u.UsageType != nil {
		c.UsageType = *u.UsageType
	}
}

// NormalizeAddress strips everything but digits from a channel address.
func NormalizeAddress(address string) string {
	var digits strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

// ListFilter pages through correspondents.
type ListFilter struct {
	Limit  int
	Offset int
	State  State
}
