package decision

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed hashing. The version suffix
// enables future algorithm migration without silent collisions.
const (
	DomainDecisions = "fozzy/decisions/v1"
	DomainScenario  = "fozzy/scenario/v1"
	DomainTrace     = "fozzy/trace/v1"
	DomainCallsite  = "fozzy/callsite/v1"
)

// HashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
