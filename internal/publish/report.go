package publish

import (
	"strconv"
	"time"

	"postbot/pkg/logx"
)

const reportHistory = 20

// Report summarizes one pass.
type Report struct {
	Started        time.Time
	Took           time.Duration
	Dispatched     int
	Published      int
	Rescheduled    int
	Failed         int
	DeliveryFailed int
	Reminded       int
	Errors         int
	Err            error
}

func (r Report) busy() bool {
	return r.Dispatched+r.Failed+r.Reminded+r.Errors > 0
}

func (r Report) fields() []logx.Field {
	return []logx.Field{
		logx.Int("dispatched", r.Dispatched),
		logx.Int("published", r.Published),
		logx.Int("rescheduled", r.Rescheduled),
		logx.Int("failed", r.Failed),
		logx.Int("delivery_failed", r.DeliveryFailed),
		logx.Int("reminded", r.Reminded),
		logx.Duration("took", r.Took),
	}
}

func (s *Service) record(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	if len(s.reports) > reportHistory {
		s.reports = s.reports[len(s.reports)-reportHistory:]
	}
}

// Reports returns recent passes, newest last.
func (s *Service) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.reports...)
}

// Last returns the most recent pass, if any.
func (s *Service) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return Report{}, false
	}
	return s.reports[len(s.reports)-1], true
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
