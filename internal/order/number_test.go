package order

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterFunc func(ctx context.Context, day string) (int64, error)

func (f counterFunc) NextSequence(ctx context.Context, day string) (int64, error) {
	return f(ctx, day)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "202601150001", FormatNumber("20260115", 1))
	assert.Equal(t, "202601159999", FormatNumber("20260115", 9999))
	assert.Equal(t, "2026011510000", FormatNumber("20260115", 10000))
}

func TestBusinessDayUsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "20260115", BusinessDay(now, time.UTC))
	assert.Equal(t, "20260116", BusinessDay(now, ist))
}

func TestNumbererNext(t *testing.T) {
	var gotDay string
	n := NewNumberer(counterFunc(func(_ context.Context, day string) (int64, error) {
		gotDay = day
		return 42, nil
	}), time.UTC, nil)

	num, err := n.Next(context.Background(), time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "20260115", gotDay)
	assert.Equal(t, "202601150042", num.Value)
	assert.False(t, num.Degraded)
}

func TestNumbererDegraded(t *testing.T) {
	fallbacks := 0
	n := NewNumberer(counterFunc(func(context.Context, string) (int64, error) {
		return 0, errors.New("connection reset")
	}), time.UTC, func(context.Context) { fallbacks++ })

	now := time.Date(2026, 1, 15, 1, 2, 3, 0, time.UTC)
	num, err := n.Next(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, num.Degraded)
	assert.Regexp(t, regexp.MustCompile(`^20260115-03723\d{4}$`), num.Value)
	assert.Equal(t, 1, fallbacks)
}

func TestNumbererCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := NewNumberer(counterFunc(func(ctx context.Context, _ string) (int64, error) {
		return 0, ctx.Err()
	}), time.UTC, nil)

	_, err := n.Next(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNumbererRejectsBadSequence(t *testing.T) {
	n := NewNumberer(counterFunc(func(context.Context, string) (int64, error) {
		return 0, nil
	}), time.UTC, nil)

	_, err := n.Next(context.Background(), time.Now())
	assert.Error(t, err)
}
