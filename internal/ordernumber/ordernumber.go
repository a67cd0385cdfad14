package ordernumber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Counter interface {
	CountOrdersByPrefix(ctx context.Context, prefix string) (int, error)
}

// Allocator hands out "{prefix}-{YYYYMMDD}-{seq}" numbers. The sequence is a
// count of existing numbers for the day, so two concurrent allocations can
// collide; the unique index on order_no rejects the loser, which retries.
type Allocator struct {
	loc *time.Location
}

func New(loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	return &Allocator{loc: loc}
}

func (a *Allocator) Allocate(ctx context.Context, counter Counter, prefix string, now time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("order number prefix required")
	}
	dayPrefix := DayPrefix(prefix, now.In(a.loc))
	count, err := counter.CountOrdersByPrefix(ctx, dayPrefix)
	if err != nil {
		return "", err
	}
	return Format(prefix, now.In(a.loc), count+1), nil
}

// DayPrefix is the shared leading part of every number issued for prefix on
// the given day, including the trailing dash.
func DayPrefix(prefix string, day time.Time) string {
	return fmt.Sprintf("%s-%s-", prefix, day.Format("20060102"))
}

func Format(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", DayPrefix(prefix, day), seq)
}

// Sequence extracts the trailing sequence number.
func Sequence(orderNo string) (int, error) {
	idx := strings.LastIndex(orderNo, "-")
	if idx < 0 || idx == len(orderNo)-1 {
		return 0, fmt.Errorf("malformed order number %q", orderNo)
	}
	return strconv.Atoi(orderNo[idx+1:])
}
