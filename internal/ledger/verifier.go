package ledger

import (
	"context"
	"fmt"
)

// Report is the outcome of a full chain verification.
type Report struct {
	Valid        bool   `json:"valid"`
	TotalEntries int64  `json:"total_entries"`
	BrokenAt     int64  `json:"broken_at_sequence,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Verify walks the chain in ascending sequence order, recomputing every hash
// from stored fields. The first mismatch is reported and the chain is
// untrustworthy from that sequence on. Verification never mutates entries.
func Verify(ctx context.Context, store Store) (Report, error) {
	expectedPrev := GenesisHash
	expectedSeq := int64(1)
	var total int64
	broken := Report{}

	err := store.Walk(ctx, func(entry Entry) error {
		if !broken.Valid && broken.BrokenAt != 0 {
			// Already broken: everything past the first break is unverifiable.
			return nil
		}
		total++

		if entry.Sequence != expectedSeq {
			broken = Report{
				BrokenAt: entry.Sequence,
				Message:  fmt.Sprintf("sequence gap: expected %d, got %d", expectedSeq, entry.Sequence),
			}
			return nil
		}
		if entry.PrevHash != expectedPrev {
			broken = Report{
				BrokenAt: entry.Sequence,
				Message:  fmt.Sprintf("prev hash mismatch at sequence %d", entry.Sequence),
			}
			return nil
		}
		payloadHash, err := PayloadHash(entry.Payload)
		if err != nil || payloadHash != entry.PayloadHash {
			broken = Report{
				BrokenAt: entry.Sequence,
				Message:  fmt.Sprintf("payload hash mismatch at sequence %d", entry.Sequence),
			}
			return nil
		}
		if EntryHash(entry.PayloadHash, entry.PrevHash, entry.Sequence, entry.CreatedAt) != entry.EntryHash {
			broken = Report{
				BrokenAt: entry.Sequence,
				Message:  fmt.Sprintf("entry hash mismatch at sequence %d", entry.Sequence),
			}
			return nil
		}

		expectedPrev = entry.EntryHash
		expectedSeq++
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	if broken.BrokenAt != 0 {
		broken.TotalEntries = total
		return broken, nil
	}
	return Report{Valid: true, TotalEntries: total}, nil
}
