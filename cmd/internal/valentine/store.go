package valentine

import (
	"context"
	"time"
)

// Store is the persistence boundary for valentine records.
//
// Every mutating method is atomic per record.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Record, error)
	Get(ctx context.Context, id string) (Record, error)

	// SetOTP overwrites the code on a PENDING record.
	SetOTP(ctx context.Context, id, code string, expiresAt, now time.Time) error

	// ConsumeOTP accepts code iff it matches and is unexpired, then clears it.
	// Any mismatch (including a missing record) is ErrInvalidCode.
	ConsumeOTP(ctx context.Context, id, code string, now time.Time) (Record, error)

	// RecordFailedGuess increments attempts and expires the record at the budget.
	RecordFailedGuess(ctx context.Context, id string, now time.Time) (Record, error)

	// Resolve moves a PENDING record to ACCEPTED or DECLINED.
	Resolve(ctx context.Context, id string, resp Response, activities []string, now time.Time) (Record, error)
}
