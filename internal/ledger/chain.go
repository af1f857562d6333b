package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// GenesisHash is the previous-hash value of the first chain entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Ledger event types.
const (
	EventTypeComplianceEvent = "COMPLIANCE_EVENT"
	EventTypeOfficerAction   = "OFFICER_ACTION"
)

// Entry is one tamper-evident chain link. Entries are inserted once and never
// mutated or deleted.
type Entry struct {
	Sequence    int64
	EventType   string
	EventID     string
	Payload     json.RawMessage
	PayloadHash string
	PrevHash    string
	EntryHash   string
	CreatedAt   time.Time
}

// CanonicalJSON normalizes a JSON document to sorted keys and compact
// separators so the payload hash is stable across storage round-trips.
func CanonicalJSON(data []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	// encoding/json marshals map keys in sorted order.
	return json.Marshal(parsed)
}

// PayloadHash computes the SHA-256 hex digest of the canonical payload.
func PayloadHash(payload []byte) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// EntryHash computes the combined chain hash for an entry: SHA-256 over the
// payload hash, the previous entry's combined hash, the sequence number and
// the creation timestamp.
func EntryHash(payloadHash, prevHash string, sequence int64, createdAt time.Time) string {
	var b strings.Builder
	b.WriteString(payloadHash)
	b.WriteString(prevHash)
	b.WriteString(strconv.FormatInt(sequence, 10))
	b.WriteString(createdAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
