package scheduler

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays only the first fire, then follows base.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// makeIntervalScheduleWithSpread returns an interval schedule whose first
// fire lands in [now+every, now+every+min(every, 30s)).
func makeIntervalScheduleWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	// Whole seconds only: cron.Every truncates sub-second offsets, which
	// would shorten the gap between the first and second run.
	window := min(every, maxStartupSpread).Truncate(time.Second)
	if window <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	spread := time.Duration(rng.Int63n(int64(window/time.Second))) * time.Second
	return &spreadSchedule{base: base, first: now.Add(every + spread)}, spread
}
