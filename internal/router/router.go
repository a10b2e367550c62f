// Package router turns transport updates into handler calls: a command tree
// with aliases and generated help, "scope:action:payload" callbacks, a
// fallback for plain messages, and a bounded worker pool. Updates of one
// actor are handled in arrival order.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"postbot/internal/transport"
	"postbot/pkg/logx"
	"postbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "list"
	//   "channels add"
	Route       string
	Aliases     []string // root-level aliases
	Description string
	Usage       string
	Access      Access
	// Menu lists the command in the platform command menu.
	Menu    bool
	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Path    []string // matched command path tokens
	Command string   // route, "cb:scope:action" or "message"
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter transport.Adapter
	Logger  logx.Logger
}

// Message is the incoming message, nil for callbacks.
func (r *Request) Message() *transport.Message { return r.Update.Message }

// Callback is the incoming callback, nil for messages.
func (r *Request) Callback() *transport.Callback { return r.Update.Callback }

// Reply sends text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// ReplyMsg sends a built UI message to the request chat.
func (r *Request) ReplyMsg(ctx context.Context, m tgui.Message) (transport.MessageRef, error) {
	return m.Send(ctx, r.Adapter, r.Chat)
}

type Config struct {
	// Workers is the number of ordered lanes; default 4.
	Workers int
	// QueueSize is the per-lane backlog; default 64.
	QueueSize int
	// Timeout applies to handlers without their own; 0 means none.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

type Manager struct {
	mu        sync.RWMutex
	root      *cmdNode
	alias     map[string]*cmdNode // alias -> leaf node
	callbacks map[string]map[string]CallbackRoute
	fallback  HandlerFunc
	owners    []int64

	cfg     Config
	log     logx.Logger
	adapter transport.Adapter

	lanesMu sync.RWMutex
	lanes   []chan func()
	closed  bool
}

func New(cfg Config, log logx.Logger, adapter transport.Adapter, owners []int64) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		callbacks: map[string]map[string]CallbackRoute{},
		owners:    append([]int64(nil), owners...),
		cfg:       cfg,
		log:       log.With(logx.Component("router")),
		adapter:   adapter,
	}
	m.lanes = make([]chan func(), cfg.Workers)
	for i := range m.lanes {
		m.lanes[i] = make(chan func(), cfg.QueueSize)
	}
	return m
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *Manager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

// IsOwner reports whether id is a configured owner.
func (m *Manager) IsOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetFallback installs the handler for messages that are not commands.
func (m *Manager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// SetRegistry replaces the command tree and callback routes. /help is
// always added.
func (m *Manager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "show help",
		Usage:       "/help [cmd] [sub...]",
		Menu:        true,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, m.helpText(req.Args), &transport.SendOptions{DisablePreview: true})
			return err
		},
	}
	cmds = append(cmds, helper)

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		leaf := root.find(route)
		// "a b" -> "a_b" for menu shortcuts
		if len(route) > 1 {
			if auto := strings.Join(route, "_"); alias[auto] == nil {
				alias[auto] = leaf
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		s := strings.TrimSpace(r.Scope)
		a := strings.TrimSpace(r.Action)
		if s == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[s] == nil {
			cb[s] = map[string]CallbackRoute{}
		}
		cb[s][a] = r
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.callbacks = cb
	m.mu.Unlock()
}

// MenuCommands lists the top-level commands flagged for the menu.
func (m *Manager) MenuCommands() []transport.BotCommand {
	m.mu.RLock()
	root := m.root
	m.mu.RUnlock()
	var out []transport.BotCommand
	for _, name := range root.childNames() {
		n, _ := root.child(name)
		if n.cmd != nil && n.cmd.Menu {
			out = append(out, transport.BotCommand{Command: name, Description: n.cmd.Description})
		}
	}
	return out
}

// Run dispatches updates until ctx is cancelled or updates is closed.
// Queued jobs are drained before it returns.
func (m *Manager) Run(ctx context.Context, updates <-chan transport.Update) error {
	m.log.Info("dispatcher started", logx.Int("workers", len(m.lanes)), logx.Int("lane_cap", m.cfg.QueueSize))

	var wg sync.WaitGroup
	wg.Add(len(m.lanes))
	for i, lane := range m.lanes {
		go func(idx int, lane chan func()) {
			defer wg.Done()
			for job := range lane {
				m.runJob(idx, job)
			}
		}(i, lane)
	}
	defer func() {
		m.lanesMu.Lock()
		m.closed = true
		for _, lane := range m.lanes {
			close(lane)
		}
		m.lanesMu.Unlock()
		wg.Wait()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

func (m *Manager) runJob(idx int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(logx.StackTrace(32)))
		}
	}()
	job()
}

// enqueue puts job on the actor's lane so one actor's updates never race.
func (m *Manager) enqueue(actor int64, job func()) bool {
	m.lanesMu.RLock()
	defer m.lanesMu.RUnlock()
	if m.closed {
		return false
	}
	u := uint64(actor)
	lane := m.lanes[u%uint64(len(m.lanes))]
	select {
	case lane <- job:
		return true
	default:
		return false
	}
}

// Route handles one update. It is exported for callers that feed updates
// without Run; handlers still execute on the lanes.
func (m *Manager) Route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			m.routeMessage(ctx, up)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			m.routeCallback(ctx, up)
		}
	}
}

func (m *Manager) request(up transport.Update, chat transport.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (m *Manager) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if msg.Media != nil || !strings.HasPrefix(text, "/") {
		m.mu.RLock()
		fb := m.fallback
		m.mu.RUnlock()
		if fb == nil {
			return
		}
		req := m.request(up, chat, msg.FromID, "message")
		m.submit(ctx, req, fb, m.cfg.Timeout)
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := commandWord(parts[0])
	args := parts[1:]

	m.mu.RLock()
	rootNode, aliasMap := m.root, m.alias
	m.mu.RUnlock()

	var (
		cmd  Command
		path []string
	)
	if leaf, ok := aliasMap[word]; ok && leaf.cmd != nil {
		cmd = *leaf.cmd
		path = splitRoute(cmd.Route)
	} else {
		cur, ok := rootNode.child(word)
		if !ok {
			_, _ = m.adapter.SendText(ctx, chat, "unknown command. try /help", nil)
			return
		}
		path = []string{word}
		for len(args) > 0 {
			child, ok := cur.child(strings.ToLower(args[0]))
			if !ok {
				break
			}
			cur = child
			path = append(path, child.name)
			args = args[1:]
		}
		if cur.cmd == nil {
			_, _ = m.adapter.SendText(ctx, chat, m.helpText(path), &transport.SendOptions{DisablePreview: true})
			return
		}
		cmd = *cur.cmd
	}

	if cmd.Access == AccessOwnerOnly && !m.IsOwner(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	req := m.request(up, chat, msg.FromID, cmd.Route)
	req.Path = path
	req.Args = args
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}
	m.submit(ctx, req, cmd.Handle, timeout)
}

func (m *Manager) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	m.mu.RLock()
	route, found := m.callbacks[scope][action]
	m.mu.RUnlock()
	if !found {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "this button is no longer active")
		return
	}
	if route.Access == AccessOwnerOnly && !m.IsOwner(cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "unauthorized")
		return
	}

	chat := transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := m.request(up, chat, cb.FromID, "cb:"+scope+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}

	final := m.chain(h, timeout)
	ok = m.enqueue(cb.FromID, func() {
		_ = final(ctx, req)
		// best-effort to stop "loading" UI
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	})
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (m *Manager) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h, MWPanicRecover(m.log), MWRequestLog(), MWTimeout(timeout))
}

func (m *Manager) submit(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	final := m.chain(h, timeout)
	if !m.enqueue(req.FromID, func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, req.Chat, "busy, try again", nil)
	}
}
