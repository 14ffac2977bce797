package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry records one operator-initiated action: who triggered what, under
// which partner scope, and from where. Entries are written for manual API
// triggers only; scheduled passes are not audited.
type Entry struct {
	ID            string
	Partner       string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// normalize fills the fields callers are allowed to omit.
func (e *Entry) normalize(now time.Time) {
	if e.ID == "" {
		e.ID = "audit-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.PayloadDigest == "" && len(e.Metadata) > 0 {
		sum := sha256.Sum256(e.Metadata)
		e.PayloadDigest = hex.EncodeToString(sum[:])
	}
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}
