package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"compass/internal/api"
)

// Directory is the part of the backend the coordinator reads from.
type Directory interface {
	ListSessions(ctx context.Context) ([]api.Session, error)
	FetchHistory(ctx context.Context, sessionID string) ([]api.Message, error)
}

// View is the transcript surface the coordinator rewrites.
type View interface {
	Clear()
	Reset()
	AppendHistory(msg api.Message)
	RequestScroll()
}

// Pending is a history load started by SelectSession. Fetch blocks and may
// run off the UI loop; it touches nothing but the directory.
type Pending struct {
	SessionID string
	gen       uint64
	dir       Directory
}

type History struct {
	SessionID string
	Messages  []api.Message
	Err       error
	gen       uint64
}

func (p Pending) Fetch(ctx context.Context) History {
	msgs, err := p.dir.FetchHistory(ctx, p.SessionID)
	return History{SessionID: p.SessionID, Messages: msgs, Err: err, gen: p.gen}
}

type Listing struct {
	Sessions []api.Session
	Err      error
}

// Coordinator switches the screen between sessions. Its methods other than
// LoadSessions and Pending.Fetch must run on the UI loop.
type Coordinator struct {
	dir     Directory
	list    *List
	view    View
	scope   *Scope
	loading string
	// gen advances on every selection and reset; only the load stamped
	// with the current value may touch the view.
	gen     uint64
	log     zerolog.Logger
}

func NewCoordinator(dir Directory, list *List, view View, scope *Scope, log zerolog.Logger) *Coordinator {
	return &Coordinator{dir: dir, list: list, view: view, scope: scope, log: log}
}

func (c *Coordinator) Scope() *Scope { return c.scope }

func (c *Coordinator) List() *List { return c.list }

// Loading reports whether a history load is outstanding.
func (c *Coordinator) Loading() bool { return c.loading != "" }

// SelectSession clears the transcript, marks id active and returns the
// history load to run.
func (c *Coordinator) SelectSession(id string) Pending {
	c.view.Clear()
	c.list.Select(id)
	c.scope.Set(id)
	c.loading = id
	c.gen++
	c.log.Debug().Str("session_id", id).Uint64("gen", c.gen).Msg("session selected")
	return Pending{SessionID: id, gen: c.gen, dir: c.dir}
}

// ApplyHistory replays a finished load. Loads superseded by a later
// selection or a new conversation are dropped, even for the same session.
func (c *Coordinator) ApplyHistory(h History) error {
	if h.gen != c.gen || h.SessionID != c.scope.ID() || c.loading != h.SessionID {
		c.log.Debug().Str("session_id", h.SessionID).Msg("dropping superseded history")
		return nil
	}
	c.loading = ""
	if h.Err != nil {
		c.log.Warn().Err(h.Err).Str("session_id", h.SessionID).Msg("history load failed")
		return errors.Wrap(h.Err, "load history")
	}
	c.view.Clear()
	for _, msg := range h.Messages {
		c.view.AppendHistory(msg)
	}
	c.view.RequestScroll()
	c.log.Debug().Str("session_id", h.SessionID).Int("messages", len(h.Messages)).Msg("history replayed")
	return nil
}

// StartNewConversation forgets the active session. The backend is not
// contacted; the next query creates the session.
func (c *Coordinator) StartNewConversation() {
	c.scope.Clear()
	c.view.Reset()
	c.list.Deselect()
	c.loading = ""
	c.gen++
}

// Adopt marks a session created by a query as the active one.
func (c *Coordinator) Adopt(id string) {
	c.scope.Set(id)
	c.list.Select(id)
}

// LoadSessions fetches the listing. It may run off the UI loop.
func (c *Coordinator) LoadSessions(ctx context.Context) Listing {
	sessions, err := c.dir.ListSessions(ctx)
	return Listing{Sessions: sessions, Err: err}
}

func (c *Coordinator) ApplySessions(l Listing) error {
	if l.Err != nil {
		c.log.Warn().Err(l.Err).Msg("session list failed")
		return errors.Wrap(l.Err, "load sessions")
	}
	c.list.Replace(l.Sessions)
	return nil
}
