package app

import (
	"context"
	"time"

	"postbot/internal/post"
)

// statusDoc is the ops /status document.
type statusDoc struct {
	Uptime    string        `json:"uptime"`
	Scheduler schedulerDoc  `json:"scheduler"`
	LastPass  *passDoc      `json:"last_pass,omitempty"`
	Sessions  int           `json:"open_sessions"`
	Notices   int           `json:"recent_notices"`
	Due       int           `json:"due_now"`
	Errors    []string      `json:"errors,omitempty"`
	Started   time.Time     `json:"started"`
}

type schedulerDoc struct {
	Enabled   bool `json:"enabled"`
	Running   bool `json:"running"`
	Workers   int  `json:"workers"`
	QueueLen  int  `json:"queue_len"`
	Schedules int  `json:"schedules"`
}

type passDoc struct {
	Started     time.Time `json:"started"`
	Took        string    `json:"took"`
	Published   int       `json:"published"`
	Rescheduled int       `json:"rescheduled"`
	Failed      int       `json:"failed"`
	Reminded    int       `json:"reminded"`
	Error       string    `json:"error,omitempty"`
}

func (a *App) status(ctx context.Context) any {
	doc := statusDoc{Started: a.startedAt, Uptime: time.Since(a.startedAt).Round(time.Second).String()}

	snap := a.sched.Snapshot()
	doc.Scheduler = schedulerDoc{
		Enabled:   snap.Enabled,
		Running:   snap.Running,
		Workers:   snap.Workers,
		QueueLen:  snap.QueueLen,
		Schedules: len(snap.Schedules),
	}
	if r, ok := a.publish.Last(); ok {
		p := &passDoc{
			Started:     r.Started,
			Took:        r.Took.String(),
			Published:   r.Published,
			Rescheduled: r.Rescheduled,
			Failed:      r.Failed + r.DeliveryFailed,
			Reminded:    r.Reminded,
		}
		if r.Err != nil {
			p.Error = r.Err.Error()
		}
		doc.LastPass = p
	}
	if n, err := a.sessions.Count(ctx); err != nil {
		doc.Errors = append(doc.Errors, "sessions: "+err.Error())
	} else {
		doc.Sessions = n
	}
	due, err := a.store.ListPosts(ctx, post.Filter{States: []post.State{post.StateScheduled}, DueBy: post.Ptr(time.Now().UTC())})
	if err != nil {
		doc.Errors = append(doc.Errors, "store: "+err.Error())
	} else {
		doc.Due = len(due)
	}
	doc.Notices = len(a.notif.History())
	return doc
}
