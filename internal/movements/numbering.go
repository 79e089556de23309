package movements

import (
	"context"
	"fmt"
	"time"
)

// SequenceTx bumps the per-(prefix, day) counter row inside the creating
// document's transaction.
type SequenceTx interface {
	NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error)
}

// NumberGenerator produces {prefix}{YYYYMMDD}{3-digit-seq} document numbers,
// e.g. IN20240521007. The sequence comes from a durable counter row updated
// with an atomic increment, so numbers stay unique and monotonically ordered
// per day even across concurrent creators and multiple server instances.
// A count-the-existing-rows approach is not acceptable here: two creators
// would read the same count and format the same number. The document number
// column additionally carries a unique constraint; creation retries on a
// constraint violation as a second line of defence.
type NumberGenerator struct{}

// Next returns the next document number for the prefix on the given day.
func (NumberGenerator) Next(ctx context.Context, tx SequenceTx, prefix string, date time.Time) (string, error) {
	seq, err := tx.NextSequence(ctx, prefix, date)
	if err != nil {
		return "", fmt.Errorf("movements: next sequence for %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s%s%03d", prefix, date.Format("20060102"), seq), nil
}
