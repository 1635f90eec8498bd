package order

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// dayLayout is the date prefix of every order number.
const dayLayout = "20060102"

// Counter hands out per-day sequence values. Implementations must increment
// atomically in storage so concurrent callers never observe the same value.
type Counter interface {
	NextSequence(ctx context.Context, day string) (int64, error)
}

// Number is an assigned order number.
type Number struct {
	Value string
	// Degraded numbers were generated without the counter and are only
	// probabilistically unique.
	Degraded bool
}

// Numberer assigns YYYYMMDDNNNN order numbers.
type Numberer struct {
	counter Counter
	loc     *time.Location
	random  io.Reader
	onFall  func(ctx context.Context)
}

// NewNumberer creates a Numberer whose calendar day boundary is taken in loc.
// onDegraded, if not nil, is called each time the fallback generator is used.
func NewNumberer(counter Counter, loc *time.Location, onDegraded func(ctx context.Context)) *Numberer {
	if loc == nil {
		loc = time.UTC
	}
	return &Numberer{counter: counter, loc: loc, random: rand.Reader, onFall: onDegraded}
}

// BusinessDay is the YYYYMMDD day now falls on in loc.
func BusinessDay(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(dayLayout)
}

// FormatNumber renders a counter-issued order number. Sequences past 9999
// widen the suffix instead of wrapping.
func FormatNumber(day string, seq int64) string {
	return fmt.Sprintf("%s%04d", day, seq)
}

// Next returns the next order number for the business day containing now.
func (n *Numberer) Next(ctx context.Context, now time.Time) (Number, error) {
	day := BusinessDay(now, n.loc)

	seq, err := n.counter.NextSequence(ctx, day)
	if err == nil {
		if seq < 1 {
			return Number{}, errors.Errorf("counter returned sequence %d for %s", seq, day)
		}
		return Number{Value: FormatNumber(day, seq)}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Number{}, errors.Wrap(ctxErr, "next order sequence")
	}

	value, rerr := degradedNumber(day, now.In(n.loc), n.random)
	if rerr != nil {
		return Number{}, errors.Wrap(err, "next order sequence")
	}
	zctx.From(ctx).Warn("Order counter unavailable, issuing degraded order number",
		zap.String("day", day),
		zap.String("order_number", value),
		zap.Error(err),
	)
	if n.onFall != nil {
		n.onFall(ctx)
	}
	return Number{Value: value, Degraded: true}, nil
}

// degradedNumber builds YYYYMMDD-SSSSSRRRR from the second of the day and a
// random suffix. The hyphen keeps it out of the counter-issued namespace.
func degradedNumber(day string, now time.Time, random io.Reader) (string, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	secs := int64(now.Sub(midnight) / time.Second)

	r, err := rand.Int(random, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%05d%04d", day, secs, r.Int64()), nil
}
