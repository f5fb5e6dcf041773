package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
)

// VolumeResetJob zeroes every stock's daily volume counter.
type VolumeResetJob struct {
	Store   ledger.Store
	Timeout time.Duration
}

func (j *VolumeResetJob) Name() string { return "daily_volume_reset" }

func (j *VolumeResetJob) Run() error {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	return j.Store.ResetDailyVolumes(ctx)
}

// SessionOpenSpec is the cron spec firing at the session's open on
// weekdays, in the session's timezone. An always-open session resets at
// midnight instead.
func SessionOpenSpec(s market.Session) string {
	tz := "UTC"
	if s.Location != nil {
		tz = s.Location.String()
	}
	if s.AlwaysOpen {
		return fmt.Sprintf("CRON_TZ=%s 0 0 * * *", tz)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * MON-FRI", tz, s.OpenMinute, s.OpenHour)
}
