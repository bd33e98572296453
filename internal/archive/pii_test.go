package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAddress(t *testing.T) {
	h1 := HashAddress("5551234567")
	h2 := HashAddress("5551234567")
	h3 := HashAddress("5557654321")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "mi correo es ana@example.com gracias", "mi correo es [EMAIL] gracias"},
		{"phone", "llámame al (555) 123-4567", "llámame al [PHONE]"},
		{"phone with plus", "mi número es +525551234567", "mi número es [PHONE]"},
		{"price kept", "la Volt cuesta $45000.00", "la Volt cuesta $45000.00"},
		{"no pii", "busco una moto para uso diario", "busco una moto para uso diario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubTurns(t *testing.T) {
	turns := []TranscriptTurn{
		{Sender: "correspondent", Content: "mi correo es test@test.com"},
		{Sender: "assistant", Content: "¡Gracias!"},
	}
	ScrubTurns(turns)
	assert.Equal(t, "mi correo es [EMAIL]", turns[0].Content)
	assert.Equal(t, "¡Gracias!", turns[1].Content)
}
