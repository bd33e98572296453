package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a catalog item does not exist or is inactive.
var ErrNotFound = errors.New("catalog: item not found")

// Item is a sellable motorcycle as seen by the assistant.
type Item struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Model           string `json:"model"`
	PriceCents      int64  `json:"price_cents"`
	BatteryCapacity string `json:"battery_capacity,omitempty"`
	Range           string `json:"range,omitempty"`
	MaxSpeedKmh     int    `json:"max_speed_kmh,omitempty"`
	ChargingTime    string `json:"charging_time,omitempty"`
	Description     string `json:"description,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	Category        string `json:"category,omitempty"`
	Active          bool   `json:"active"`
}

// HasImage reports whether the item can be sent as an image message.
func (i Item) HasImage() bool {
	return strings.TrimSpace(i.ImageURL) != ""
}

// Reader is the read-only view of the catalog used by the conversation engine.
type Reader interface {
	ListActive(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id int64) (*Item, error)
}

// FormatPrice renders minor currency units as "$1234.50".
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// PromptLine renders one catalog line for the system prompt.
func PromptLine(i Item) string {
	return fmt.Sprintf("- [id %d] %s %s: %s - %s - Rango: %s, Velocidad máx: %d km/h",
		i.ID, i.Name, i.Model, FormatPrice(i.PriceCents), i.Category, i.Range, i.MaxSpeedKmh)
}

// Caption is the text attached to an item's image message.
func Caption(i Item) string {
	return fmt.Sprintf("%s %s - %s", i.Name, i.Model, FormatPrice(i.PriceCents))
}
