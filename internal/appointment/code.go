package appointment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxDailySequence = 999

// CodePrefix returns the APT-YYYYMMDD- prefix shared by every appointment of
// the calendar day of t.
func CodePrefix(t time.Time) string {
	return "APT-" + t.Format("20060102") + "-"
}

// CodeGenerator hands out APT-YYYYMMDD-NNN codes, sequential per clinic day.
type CodeGenerator struct {
	loc *time.Location
}

func NewCodeGenerator(loc *time.Location) *CodeGenerator {
	return &CodeGenerator{loc: loc}
}

// Next must run inside the transaction that inserts the appointment. The
// per-day lock it takes is held until that transaction ends, so two bookings
// on the same day cannot read the same maximum.
func (g *CodeGenerator) Next(ctx context.Context, repo Repository, start time.Time) (string, error) {
	prefix := CodePrefix(start.In(g.loc))

	if err := repo.LockResources(ctx, []string{"apt-code:" + prefix}); err != nil {
		return "", fmt.Errorf("lock code sequence: %w", err)
	}

	last, err := repo.MaxCodeWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("load last code: %w", err)
	}

	seq, err := nextSequence(prefix, last)
	if err != nil {
		return "", err
	}
	if seq > maxDailySequence {
		return "", withf(ErrCodeSequenceExhausted, "all %d codes for %s are used", maxDailySequence, strings.TrimSuffix(prefix, "-"))
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

func nextSequence(prefix, last string) (int, error) {
	if last == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil {
		return 0, fmt.Errorf("parse appointment code %q: %w", last, err)
	}
	return n + 1, nil
}
