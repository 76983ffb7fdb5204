// Package query runs one streamed agent query at a time: it opens the
// stream, classifies frames, drives the transcript and closes the stream
// exactly once when the query reaches a terminal phase.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"compass/internal/api"
	"compass/internal/event"
	"compass/internal/session"
)

var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrQueryRunning = errors.New("a query is still running")
)

const (
	statusThinking   = "thinking…"
	malformedMessage = "received a malformed event from the server"
)

// Surface is the transcript the controller paints into.
type Surface interface {
	AppendUser(content string)
	OpenTurn(id, status string)
	AppendLog(id string, entry event.LogEntry)
	SetStatus(id, label string)
	CollapseTrace(id string)
	FinishTurn(id string)
	SetAnswer(id, markdown string)
	SetError(id, message string)
}

// Snapshot is a read-only view of the active query.
type Snapshot struct {
	QueryID   string
	SessionID string
	Phase     Phase
	Answer    string
	StartedAt time.Time
	Elapsed   time.Duration
	Closes    int
}

type active struct {
	queryID   string
	sessionID string
	query     string
	scope     *session.Scope
	startedAt time.Time
	answer    string
	phase     Phase
	stream    Stream
	closes    int
	elapsed   time.Duration
}

// Controller must be driven from a single goroutine (the UI loop). Ticket
// and Receiver run their blocking work elsewhere and hand results back
// through Attach and Deliver.
type Controller struct {
	backend Backend
	surface Surface
	now     func() time.Time
	newID   func() string
	idle    time.Duration
	log     zerolog.Logger
	cur     *active
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(next func() string) Option {
	return func(c *Controller) { c.newID = next }
}

// WithIdleTimeout ends a query as disconnected when no frame arrives for d.
// Zero waits forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idle = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func New(backend Backend, surface Surface, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		surface: surface,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Running reports whether a query is in flight.
func (c *Controller) Running() bool {
	return c.cur != nil && c.cur.phase == PhaseRunning
}

func (c *Controller) Snapshot() Snapshot {
	if c.cur == nil {
		return Snapshot{Phase: PhaseIdle}
	}
	return Snapshot{
		QueryID:   c.cur.queryID,
		SessionID: c.cur.sessionID,
		Phase:     c.cur.phase,
		Answer:    c.cur.answer,
		StartedAt: c.cur.startedAt,
		Elapsed:   c.cur.elapsed,
		Closes:    c.cur.closes,
	}
}

// Ticket opens the stream for a submitted query.
type Ticket struct {
	QueryID   string
	SessionID string
	Query     string
	backend   Backend
}

// Opened is the result of Ticket.Open.
type Opened struct {
	QueryID   string
	SessionID string
	Created   bool
	Stream    Stream
	Err       error
}

// Open creates the session when the scope had none, then opens the stream.
// It blocks and must not touch controller state.
func (t Ticket) Open(ctx context.Context) Opened {
	out := Opened{QueryID: t.QueryID, SessionID: t.SessionID}
	if out.SessionID == "" {
		id, err := t.backend.CreateSession(ctx, t.Query)
		if err != nil {
			out.Err = err
			return out
		}
		out.SessionID = id
		out.Created = true
	}
	s, err := t.backend.OpenStream(ctx, out.SessionID, t.Query)
	if err != nil {
		out.Err = err
		return out
	}
	out.Stream = s
	return out
}

// Submit starts a query in scope. The returned ticket must be opened and
// its result passed to Attach.
func (c *Controller) Submit(scope *session.Scope, text string) (Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Ticket{}, ErrEmptyQuery
	}
	if c.Running() {
		return Ticket{}, ErrQueryRunning
	}
	st := &active{
		queryID:   c.newID(),
		sessionID: scope.ID(),
		query:     text,
		scope:     scope,
		startedAt: c.now(),
		phase:     PhaseRunning,
	}
	c.cur = st
	c.surface.AppendUser(text)
	c.surface.OpenTurn(st.queryID, statusThinking)
	c.log.Info().
		Str("query_id", st.queryID).
		Str("session_id", st.sessionID).
		Msg("query submitted")
	return Ticket{QueryID: st.queryID, SessionID: st.sessionID, Query: text, backend: c.backend}, nil
}

// Attach records the opened stream. It reports whether o belongs to the
// running query; streams for anything else are closed and dropped.
func (c *Controller) Attach(o Opened) bool {
	st := c.current(o.QueryID)
	if st == nil {
		if o.Stream != nil {
			_ = o.Stream.Close()
		}
		c.log.Debug().Str("query_id", o.QueryID).Msg("dropping stream for stale query")
		return false
	}
	if o.Created {
		st.sessionID = o.SessionID
		st.scope.Set(o.SessionID)
	}
	if o.Err != nil {
		c.log.Warn().Err(o.Err).Str("query_id", st.queryID).Msg("query could not start")
		c.transition(st, PhaseErrored, o.Err.Error())
		return true
	}
	st.stream = o.Stream
	return true
}

// Received is one result of Receiver.Wait.
type Received struct {
	QueryID string
	Frame   api.Frame
	Err     error
}

// Receiver waits for the next frame of a running query.
type Receiver struct {
	QueryID string
	stream  Stream
	idle    time.Duration
}

// Wait blocks until a frame, a transport failure or the idle timeout.
func (r Receiver) Wait(ctx context.Context) Received {
	if r.idle > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.idle)
		defer cancel()
	}
	f, err := r.stream.Next(ctx)
	return Received{QueryID: r.QueryID, Frame: f, Err: err}
}

// Receiver returns the waiter for the running query's stream.
func (c *Controller) Receiver() (Receiver, bool) {
	if !c.Running() || c.cur.stream == nil {
		return Receiver{}, false
	}
	return Receiver{QueryID: c.cur.queryID, stream: c.cur.stream, idle: c.idle}, true
}

// Deliver routes a received frame or failure. It reports whether the query
// is still waiting for frames.
func (c *Controller) Deliver(r Received) bool {
	if r.Err != nil {
		c.HandleFailure(r.QueryID, r.Err)
	} else {
		c.HandleFrame(r.QueryID, r.Frame)
	}
	return c.Running() && c.cur.queryID == r.QueryID
}

// HandleFrame classifies one frame of query queryID.
func (c *Controller) HandleFrame(queryID string, f api.Frame) {
	st := c.current(queryID)
	if st == nil {
		return
	}
	err := event.Dispatch(f.Data, dispatcher{c: c, st: st})
	if err == nil {
		return
	}
	var unknown *event.UnknownTypeError
	if errors.As(err, &unknown) {
		c.log.Warn().Str("query_id", queryID).Str("type", string(unknown.Type)).Msg("ignoring unknown event type")
		return
	}
	c.log.Warn().Err(err).Str("query_id", queryID).Msg("malformed stream event")
	c.transition(st, PhaseErrored, malformedMessage)
}

// HandleFailure ends query queryID as disconnected.
func (c *Controller) HandleFailure(queryID string, err error) {
	st := c.current(queryID)
	if st == nil {
		return
	}
	c.log.Warn().Err(err).Str("query_id", queryID).Msg("stream lost")
	c.transition(st, PhaseDisconnected, "")
}

func (c *Controller) current(queryID string) *active {
	if c.cur == nil || c.cur.queryID != queryID || c.cur.phase != PhaseRunning {
		return nil
	}
	return c.cur
}

// transition is the only place phases change and the only caller of
// Stream.Close.
func (c *Controller) transition(st *active, to Phase, detail string) {
	if st.phase != PhaseRunning || !to.Terminal() {
		return
	}
	st.phase = to
	st.elapsed = c.now().Sub(st.startedAt)
	took := FormatElapsed(st.elapsed)

	switch to {
	case PhaseCompleted:
		c.surface.SetAnswer(st.queryID, st.answer)
		c.surface.SetStatus(st.queryID, "done in "+took)
		c.surface.CollapseTrace(st.queryID)
	case PhaseErrored:
		c.surface.SetError(st.queryID, detail)
		c.surface.SetStatus(st.queryID, "error after "+took)
	case PhaseDisconnected:
		c.surface.SetStatus(st.queryID, "connection lost after "+took)
	}
	c.surface.FinishTurn(st.queryID)

	if st.stream != nil {
		if err := st.stream.Close(); err != nil {
			c.log.Debug().Err(err).Str("query_id", st.queryID).Msg("stream close")
		}
		st.closes++
	}
	c.log.Info().
		Str("query_id", st.queryID).
		Str("session_id", st.sessionID).
		Stringer("phase", to).
		Dur("elapsed", st.elapsed).
		Msg("query finished")
}

type dispatcher struct {
	c  *Controller
	st *active
}

func (d dispatcher) OnLog(entry event.LogEntry) {
	d.c.surface.AppendLog(d.st.queryID, entry)
}

func (d dispatcher) OnFinalAnswer(content string) {
	d.st.answer = content
	d.c.transition(d.st, PhaseCompleted, "")
}

func (d dispatcher) OnError(content string) {
	d.c.transition(d.st, PhaseErrored, content)
}

// FormatElapsed renders a query duration for status labels: milliseconds
// below one second, tenths of a second above.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
