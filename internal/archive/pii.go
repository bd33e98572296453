package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\(?\d[\d\s().-]{7,}\d`)
)

// HashAddress returns the hex-encoded SHA-256 of a channel address.
func HashAddress(address string) string {
	h := sha256.Sum256([]byte(address))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// ScrubTurns applies PII scrubbing to every turn in place.
func ScrubTurns(turns []TranscriptTurn) {
	for i := range turns {
		turns[i].Content = ScrubPII(turns[i].Content)
	}
}
