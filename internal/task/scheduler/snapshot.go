package scheduler

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.cfg.Timezone}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	eng := s.engine
	s.mu.Unlock()

	if eng != nil {
		es := eng.Snapshot()
		snap.Workers = es.Workers
		snap.InFlight = es.InFlight
		snap.QueueLen, snap.QueueCap = es.QueueLen, es.QueueCap
		snap.Dropped = es.Dropped
		snap.Skipped = es.Skipped
		snap.RetryMax = es.RetryMax
		snap.DefaultTimeout = es.DefaultTimeout
		snap.History = es.History
	}
	return snap
}
