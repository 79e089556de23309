package movements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySequences struct {
	seqs map[string]int64
}

func (m *memorySequences) NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error) {
	if m.seqs == nil {
		m.seqs = make(map[string]int64)
	}
	key := prefix + ":" + date.Format("2006-01-02")
	m.seqs[key]++
	return m.seqs[key], nil
}

func TestNumberGeneratorFormat(t *testing.T) {
	seqs := &memorySequences{}
	gen := NumberGenerator{}
	ctx := context.Background()
	date := time.Date(2024, 5, 21, 14, 30, 0, 0, time.UTC)

	number, err := gen.Next(ctx, seqs, "IN", date)
	require.NoError(t, err)
	require.Equal(t, "IN20240521001", number)

	number, err = gen.Next(ctx, seqs, "IN", date)
	require.NoError(t, err)
	require.Equal(t, "IN20240521002", number)
}

func TestNumberGeneratorIsolatesPrefixAndDay(t *testing.T) {
	seqs := &memorySequences{}
	gen := NumberGenerator{}
	ctx := context.Background()
	day1 := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first, err := gen.Next(ctx, seqs, "IN", day1)
	require.NoError(t, err)
	require.Equal(t, "IN20240521001", first)

	// another prefix on the same day starts at 001
	out, err := gen.Next(ctx, seqs, "OUT", day1)
	require.NoError(t, err)
	require.Equal(t, "OUT20240521001", out)

	// the next day resets the counter
	next, err := gen.Next(ctx, seqs, "IN", day2)
	require.NoError(t, err)
	require.Equal(t, "IN20240522001", next)
}

func TestNumberGeneratorPadsBeyondThreeDigits(t *testing.T) {
	seqs := &memorySequences{}
	gen := NumberGenerator{}
	ctx := context.Background()
	date := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)

	var number string
	var err error
	for i := 0; i < 1000; i++ {
		number, err = gen.Next(ctx, seqs, "CHK", date)
		require.NoError(t, err)
	}
	require.Equal(t, "CHK202405211000", number)
}
