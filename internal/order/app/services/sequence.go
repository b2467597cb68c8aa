package services

import (
	"context"
	"fmt"
	"time"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/logger"
)

// SequenceCounter mints human-readable daily order numbers.
type SequenceCounter struct {
	repo  core.ICounterRepo
	loc   *time.Location
	now   func() time.Time
	mylog logger.Logger
}

func NewSequenceCounter(repo core.ICounterRepo, loc *time.Location, mylog logger.Logger) *SequenceCounter {
	if loc == nil {
		loc = time.UTC
	}
	return &SequenceCounter{
		repo:  repo,
		loc:   loc,
		now:   time.Now,
		mylog: mylog,
	}
}

// Next returns the next order number for today, e.g. 20250314-007-DL.
// The business date is fixed when Next is called, so a retry that crosses
// midnight still counts against the original day.
func (sc *SequenceCounter) Next(ctx context.Context, orderType models.OrderType) (string, error) {
	at := sc.now().In(sc.loc)
	dateKey := at.Format(core.DateKeyLayout)

	seq, err := sc.repo.Increment(ctx, dateKey, orderType, at)
	if err != nil {
		sc.mylog.Action("sequence_failed").Error("Failed to increment order counter", err, "date", dateKey, "order_type", orderType)
		return "", fmt.Errorf("%w: %w", core.ErrSequenceUnavailable, err)
	}
	return FormatOrderNo(dateKey, seq, orderType), nil
}

// FormatOrderNo pads seq to three digits; larger numbers grow, never wrap.
func FormatOrderNo(dateKey string, seq int, orderType models.OrderType) string {
	return fmt.Sprintf("%s-%03d-%s", dateKey, seq, orderType.Code())
}
