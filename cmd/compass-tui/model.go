package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"compass/internal/api"
	"compass/internal/config"
	"compass/internal/query"
	"compass/internal/render"
	"compass/internal/session"
	"compass/internal/transcript"
)

type focusPane int

const (
	focusInput focusPane = iota
	focusSessions
)

type model struct {
	cfg    config.Config
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	client   *api.Client
	scope    *session.Scope
	view     *transcript.Transcript
	renderer *render.Renderer
	coord    *session.Coordinator
	ctrl     *query.Controller
	startup  *session.Pending

	focus      focusPane
	statusLine string
	statusErr  bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(parent context.Context, cfg config.Config, client *api.Client, log zerolog.Logger) (model, error) {
	renderer, err := render.New(80, cfg.MarkdownStyle, render.DefaultStyles())
	if err != nil {
		return model{}, errors.Wrap(err, "build renderer")
	}

	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask the agent anything. Ctrl+N starts a new conversation."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	scope := session.NewScope("")
	view := transcript.New()
	coord := session.NewCoordinator(client, session.NewList(), view, scope, log.With().Str("component", "session").Logger())
	ctrl := query.New(query.ClientBackend(client), view,
		query.WithIdleTimeout(cfg.StreamIdleTimeout),
		query.WithLogger(log.With().Str("component", "query").Logger()),
	)

	ctx, cancel := context.WithCancel(parent)
	m := model{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
		client:     client,
		scope:      scope,
		view:       view,
		renderer:   renderer,
		coord:      coord,
		ctrl:       ctrl,
		statusLine: "ready · " + client.BaseURL(),
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}
	if cfg.SessionID != "" {
		pending := coord.SelectSession(cfg.SessionID)
		m.startup = &pending
		m.statusLine = "loading session " + cfg.SessionID + "…"
	}
	return m, nil
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.loadSessionsCmd()}
	if m.startup != nil {
		cmds = append(cmds, m.fetchHistoryCmd(*m.startup), m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m model) busy() bool {
	return m.ctrl.Running() || m.coord.Loading()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	dirty := false
	switch msg := msg.(type) {
	case sessionsLoadedMsg:
		if err := m.coord.ApplySessions(msg.listing); err != nil {
			m.logError(err)
		}
		dirty = true
	case historyLoadedMsg:
		if err := m.coord.ApplyHistory(msg.history); err != nil {
			m.logError(err)
		} else if msg.history.SessionID == m.scope.ID() {
			m.setStatus(fmt.Sprintf("session %s · %d messages", msg.history.SessionID, len(msg.history.Messages)))
		}
		dirty = true
	case streamOpenedMsg:
		if !m.ctrl.Attach(msg.opened) {
			break
		}
		if msg.opened.Created {
			m.coord.Adopt(msg.opened.SessionID)
			cmds = append(cmds, m.loadSessionsCmd())
		}
		if cmd := m.waitFrameCmd(); cmd != nil {
			cmds = append(cmds, cmd)
		} else {
			m.reportQuery()
		}
		dirty = true
	case frameMsg:
		if m.ctrl.Deliver(msg.received) {
			cmds = append(cmds, m.waitFrameCmd())
		} else if msg.received.QueryID == m.ctrl.Snapshot().QueryID {
			m.reportQuery()
		}
		dirty = true
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		dirty = true
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.MouseMsg:
		var cmd tea.Cmd
		if m.focus == focusSessions {
			m.sidebar, cmd = m.sidebar.Update(msg)
		} else {
			m.timeline, cmd = m.timeline.Update(msg)
		}
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		var cmd tea.Cmd
		cmd, dirty = m.handleKey(msg)
		cmds = append(cmds, cmd)
	default:
		// cursor blink
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if dirty {
		m.renderPanes()
	}
	return m, tea.Batch(cmds...)
}

// handleKey reports the command to run and whether the panes need a repaint.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.cancel()
		return tea.Quit, false
	case "ctrl+n":
		if m.ctrl.Running() {
			m.setNotice("wait for the running query to finish")
			return nil, false
		}
		m.coord.StartNewConversation()
		m.setFocus(focusInput)
		m.setStatus("new conversation")
		return nil, true
	case "ctrl+r":
		m.setStatus("refreshing sessions…")
		return m.loadSessionsCmd(), false
	case "ctrl+t":
		return nil, m.view.ToggleLatestTrace()
	case "tab", "shift+tab":
		if m.focus == focusInput {
			m.setFocus(focusSessions)
		} else {
			m.setFocus(focusInput)
		}
		return nil, true
	case "pgup":
		m.timeline.LineUp(8)
		return nil, false
	case "pgdown":
		m.timeline.LineDown(8)
		return nil, false
	}

	if m.focus == focusSessions {
		switch msg.String() {
		case "up", "k":
			m.coord.List().MoveCursor(-1)
			return nil, true
		case "down", "j":
			m.coord.List().MoveCursor(1)
			return nil, true
		case "esc":
			m.setFocus(focusInput)
			return nil, true
		case "enter":
			return m.selectCursorSession(), true
		}
		return nil, false
	}

	switch msg.String() {
	case "enter":
		return m.submit(), true
	case "home":
		m.timeline.GotoTop()
		return nil, false
	case "end":
		m.timeline.GotoBottom()
		return nil, false
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd, false
}

func (m *model) submit() tea.Cmd {
	if m.coord.Loading() {
		m.setNotice("history is still loading")
		return nil
	}
	ticket, err := m.ctrl.Submit(m.scope, m.input.Value())
	switch {
	case errors.Is(err, query.ErrEmptyQuery):
		return nil
	case errors.Is(err, query.ErrQueryRunning):
		m.setNotice("a query is already running")
		return nil
	case err != nil:
		m.logError(err)
		return nil
	}
	m.input.SetValue("")
	m.setStatus("thinking…")
	return tea.Batch(m.openStreamCmd(ticket), m.spinner.Tick)
}

func (m *model) selectCursorSession() tea.Cmd {
	item, ok := m.coord.List().CursorItem()
	if !ok {
		return nil
	}
	if m.ctrl.Running() {
		m.setNotice("wait for the running query to finish before switching sessions")
		return nil
	}
	pending := m.coord.SelectSession(item.ID)
	m.setFocus(focusInput)
	m.setStatus("loading " + sessionLabel(item) + "…")
	return tea.Batch(m.fetchHistoryCmd(pending), m.spinner.Tick)
}

func (m *model) reportQuery() {
	snap := m.ctrl.Snapshot()
	took := query.FormatElapsed(snap.Elapsed)
	switch snap.Phase {
	case query.PhaseCompleted:
		m.setStatus("answer ready in " + took)
	case query.PhaseErrored:
		m.setNotice("query failed after " + took)
	case query.PhaseDisconnected:
		m.setNotice("connection lost after " + took)
	}
}

func (m *model) setFocus(f focusPane) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *model) setStatus(line string) {
	m.statusLine = line
	m.statusErr = false
}

func (m *model) setNotice(line string) {
	m.statusLine = line
	m.statusErr = true
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.log.Warn().Err(err).Msg("notice")
	m.setNotice("error: " + compactSingleLine(err.Error(), 160))
}

func sessionLabel(s api.Session) string {
	if title := strings.TrimSpace(s.Title); title != "" {
		return title
	}
	return s.ID
}
