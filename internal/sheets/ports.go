package sheets

import (
	"context"

	"halfmonth/internal/core"
)

// PeriodMirror keeps an outbound copy of each user period, one tab per
// period. Both operations are idempotent.
type PeriodMirror interface {
	MirrorPeriod(ctx context.Context, userID string, p core.Period) error
	RemovePeriod(ctx context.Context, userID string, key core.PeriodKey) error
}
