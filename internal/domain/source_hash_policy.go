package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SourceHashPolicy computes a stable hash for a scheme source text, used to
// skip re-indexing unchanged sources.
type SourceHashPolicy interface {
	Compute(schemeName, theme, text string) string
}

type sourceHashPolicy struct{}

// NewSourceHashPolicy creates the default SourceHashPolicy.
func NewSourceHashPolicy() SourceHashPolicy {
	return &sourceHashPolicy{}
}

// Compute returns the SHA-256 hash of the trimmed components joined with a
// null byte, so ("AB", "C") and ("A", "BC") never collide.
func (p *sourceHashPolicy) Compute(schemeName, theme, text string) string {
	content := strings.TrimSpace(schemeName) + "\x00" +
		strings.TrimSpace(theme) + "\x00" +
		strings.TrimSpace(text)

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
