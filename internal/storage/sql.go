package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"postbot/internal/post"
	"postbot/pkg/logx"
)

// sqlStore implements Store over database/sql for sqlite and postgres.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, d: d, log: log, now: time.Now, pruneEvery: 500}
}

func (s *sqlStore) q(query string) string { return s.d.rebind(query) }

func (s *sqlStore) Ping(ctx context.Context) error {
	return post.Unavailable("ping", s.db.PingContext(ctx))
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const postColumns = `id, owner, channel_id, text, media_kind, media_ref, format, actions,
	scheduled_at, repeat_sec, state, notified, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (post.Post, error) {
	var (
		p                   post.Post
		mediaKind, mediaRef sql.NullString
		format, state       string
		actions             string
		at                  sql.NullInt64
		repeat, notified    int64
		created, updated    int64
	)
	err := r.Scan(&p.ID, &p.Owner, &p.ChannelID, &p.Text, &mediaKind, &mediaRef, &format, &actions,
		&at, &repeat, &state, &notified, &created, &updated)
	if err != nil {
		return p, err
	}
	if mediaKind.Valid && mediaRef.Valid {
		p.Media = &post.Media{Kind: post.MediaKind(mediaKind.String), Ref: mediaRef.String}
	}
	p.Format = post.Format(format)
	p.State = post.State(state)
	if err := json.Unmarshal([]byte(actions), &p.Actions); err != nil {
		return p, fmt.Errorf("post %d: decode actions: %w", p.ID, err)
	}
	if p.Actions == nil {
		p.Actions = []post.Action{}
	}
	if at.Valid {
		t := time.Unix(at.Int64, 0).UTC()
		p.At = &t
	}
	p.Repeat = time.Duration(repeat) * time.Second
	p.Notified = notified != 0
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}

// postArgs returns the column values after id, in postColumns order.
func postArgs(p post.Post) ([]any, error) {
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return nil, err
	}
	var mediaKind, mediaRef, at any
	if p.Media != nil {
		mediaKind, mediaRef = string(p.Media.Kind), p.Media.Ref
	}
	if p.At != nil {
		at = p.At.Unix()
	}
	notified := 0
	if p.Notified {
		notified = 1
	}
	return []any{
		p.Owner, p.ChannelID, p.Text, mediaKind, mediaRef, string(p.Format), string(actions),
		at, int64(p.Repeat / time.Second), string(p.State), notified,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	}, nil
}

func (s *sqlStore) CreatePost(ctx context.Context, p post.Post) (post.Post, error) {
	p, err := prepareCreate(ctx, p, s.now().UTC().Truncate(time.Second))
	if err != nil {
		return p, err
	}
	args, err := postArgs(p)
	if err != nil {
		return p, err
	}
	err = s.db.QueryRowContext(ctx, s.q(`INSERT INTO posts(owner, channel_id, text, media_kind, media_ref, format, actions,
		scheduled_at, repeat_sec, state, notified, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`), args...).Scan(&p.ID)
	if err != nil {
		return p, post.Unavailable("create post", err)
	}
	return p, nil
}

func (s *sqlStore) GetPost(ctx context.Context, id int64) (post.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, s.q(`SELECT `+postColumns+` FROM posts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, post.ErrNotFound
	}
	return p, post.Unavailable("get post", err)
}

func (s *sqlStore) ListPosts(ctx context.Context, f post.Filter) ([]post.Post, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != 0 {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(marks, ",")+")")
	}
	if f.DueBy != nil {
		where = append(where, "scheduled_at IS NOT NULL AND scheduled_at <= ?")
		args = append(args, f.DueBy.Unix())
	}
	if f.NotNotified {
		where = append(where, "notified = 0")
	}
	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// drafts sort after scheduled posts
	query += " ORDER BY CASE WHEN scheduled_at IS NULL THEN 1 ELSE 0 END, scheduled_at, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, post.Unavailable("list posts", err)
	}
	defer rows.Close()

	out := []post.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, post.Unavailable("list posts", err)
		}
		out = append(out, p)
	}
	return out, post.Unavailable("list posts", rows.Err())
}

func (s *sqlStore) UpdatePost(ctx context.Context, id int64, patch post.Patch) (post.Post, error) {
	return s.update(ctx, id, nil, patch)
}

func (s *sqlStore) UpdatePostIf(ctx context.Context, id int64, expect post.State, patch post.Patch) (post.Post, error) {
	return s.update(ctx, id, &expect, patch)
}

func (s *sqlStore) update(ctx context.Context, id int64, expect *post.State, patch post.Patch) (out post.Post, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, post.Unavailable("update post", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cur, err := scanPost(tx.QueryRowContext(ctx, s.q(`SELECT `+postColumns+` FROM posts WHERE id = ?`+s.d.forUpdate), id))
	if errors.Is(err, sql.ErrNoRows) {
		return out, post.ErrNotFound
	}
	if err != nil {
		return out, post.Unavailable("update post", err)
	}
	next, err := applyPatch(ctx, cur, expect, patch, s.now().UTC().Truncate(time.Second))
	if err != nil {
		return cur, err
	}
	args, err := postArgs(next)
	if err != nil {
		return cur, err
	}
	// The state guard repeats the check for drivers without row locks.
	args = append(args, id, string(cur.State))
	res, err := tx.ExecContext(ctx, s.q(`UPDATE posts SET owner = ?, channel_id = ?, text = ?, media_kind = ?, media_ref = ?,
		format = ?, actions = ?, scheduled_at = ?, repeat_sec = ?, state = ?, notified = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND state = ?`), args...)
	if err != nil {
		return cur, post.Unavailable("update post", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = &post.ConcurrentEditError{PostID: id, Expected: cur.State, Actual: "unknown"}
		return cur, err
	}
	if err = tx.Commit(); err != nil {
		return cur, post.Unavailable("update post", err)
	}
	return next, nil
}

func (s *sqlStore) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return post.Unavailable("delete post", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return post.ErrNotFound
	}
	return nil
}

const channelColumns = `id, owner, chat_id, title, username, created_at`

func scanChannel(r rowScanner) (Channel, error) {
	var (
		c        Channel
		username sql.NullString
		created  int64
	)
	if err := r.Scan(&c.ID, &c.Owner, &c.ChatID, &c.Title, &username, &created); err != nil {
		return c, err
	}
	c.Username = username.String
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}

func (s *sqlStore) CreateChannel(ctx context.Context, c Channel) (Channel, error) {
	c.CreatedAt = s.now().UTC().Truncate(time.Second)
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO channels(owner, chat_id, title, username, created_at)
		VALUES(?,?,?,?,?) RETURNING id`),
		c.Owner, c.ChatID, c.Title, nullStr(c.Username), c.CreatedAt.Unix()).Scan(&c.ID)
	return c, post.Unavailable("create channel", err)
}

func (s *sqlStore) GetChannel(ctx context.Context, id int64) (Channel, error) {
	c, err := scanChannel(s.db.QueryRowContext(ctx, s.q(`SELECT `+channelColumns+` FROM channels WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrChannelNotFound
	}
	return c, post.Unavailable("get channel", err)
}

func (s *sqlStore) FindChannel(ctx context.Context, owner, chatID int64) (Channel, bool, error) {
	c, err := scanChannel(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+channelColumns+` FROM channels WHERE owner = ? AND chat_id = ?`), owner, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, post.Unavailable("find channel", err)
	}
	return c, true, nil
}

func (s *sqlStore) ListChannels(ctx context.Context, owner int64) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+channelColumns+` FROM channels WHERE owner = ? ORDER BY id`), owner)
	if err != nil {
		return nil, post.Unavailable("list channels", err)
	}
	defer rows.Close()
	out := []Channel{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, post.Unavailable("list channels", err)
		}
		out = append(out, c)
	}
	return out, post.Unavailable("list channels", rows.Err())
}

func (s *sqlStore) DeleteChannel(ctx context.Context, owner, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM channels WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return post.Unavailable("delete channel", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (s *sqlStore) GetPrefs(ctx context.Context, actor int64) (Prefs, bool, error) {
	p := Prefs{Actor: actor}
	var lead int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT timezone, date_pattern, time_pattern, reminder_lead_sec
		FROM prefs WHERE actor = ?`), actor).Scan(&p.Timezone, &p.DatePattern, &p.TimePattern, &lead)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, post.Unavailable("get prefs", err)
	}
	p.ReminderLead = time.Duration(lead) * time.Second
	return p, true, nil
}

func (s *sqlStore) PutPrefs(ctx context.Context, p Prefs) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO prefs(actor, timezone, date_pattern, time_pattern, reminder_lead_sec)
		VALUES(?,?,?,?,?)
		ON CONFLICT(actor) DO UPDATE SET timezone = excluded.timezone, date_pattern = excluded.date_pattern,
			time_pattern = excluded.time_pattern, reminder_lead_sec = excluded.reminder_lead_sec`),
		p.Actor, p.Timezone, p.DatePattern, p.TimePattern, int64(p.ReminderLead/time.Second))
	return post.Unavailable("put prefs", err)
}

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO dedup(key, until) VALUES(?,?)
		ON CONFLICT(key) DO UPDATE SET until = excluded.until`), key, until.UnixMilli())
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if _, perr := s.db.ExecContext(pctx, s.q(`DELETE FROM dedup WHERE until < ?`), time.Now().UnixMilli()); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return post.Unavailable("put dedup", err)
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT until FROM dedup WHERE key = ?`), key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, post.Unavailable("get dedup", err)
	}
	return time.UnixMilli(ms), true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
