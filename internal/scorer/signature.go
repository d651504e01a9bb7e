package scorer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"

	"github.com/sells-group/listing-trust/internal/model"
)

// Signature prefixes name the digest used.
const (
	sigHMAC   = "hmac-sha256:"
	sigDigest = "sha256:"
)

// signedPayload is the canonical serialization the signature covers.
// Field order is fixed by the struct; images are never null.
type signedPayload struct {
	Listing model.Listing `json:"listing"`
	Score   int           `json:"score"`
}

// Sign returns the tamper-evidence signature over (l, score).
func (s *Scorer) Sign(l *model.Listing, score int) string {
	return Sign(l, score, s.key)
}

// Verify recomputes the signature for (l, score) and compares it with sig.
func (s *Scorer) Verify(l *model.Listing, score int, sig string) bool {
	return Verify(l, score, sig, s.key)
}

// Sign computes HMAC-SHA256 with key, or plain SHA-256 when key is empty,
// over the canonical JSON of (l, score).
func Sign(l *model.Listing, score int, key []byte) string {
	payload := signedPayload{Score: score}
	if l != nil {
		payload.Listing = *l
	}
	if payload.Listing.Images == nil {
		payload.Listing.Images = []string{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		// Listing holds only strings, dates and a finite price.
		return ""
	}

	var h hash.Hash
	prefix := sigDigest
	if len(key) > 0 {
		h = hmac.New(sha256.New, key)
		prefix = sigHMAC
	} else {
		h = sha256.New()
	}
	h.Write(body)
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether sig matches (l, score) under key, in constant time.
func Verify(l *model.Listing, score int, sig string, key []byte) bool {
	want := Sign(l, score, key)
	if want == "" {
		return false
	}
	return hmac.Equal([]byte(want), []byte(sig))
}
