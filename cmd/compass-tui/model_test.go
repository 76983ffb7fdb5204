package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compass/internal/api"
	"compass/internal/config"
	"compass/internal/query"
)

type fakeServer struct {
	mu      sync.Mutex
	created int
	streams []string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			f.created++
			_, _ = fmt.Fprintf(w, `{"id":"new-%d"}`, f.created)
			return
		}
		sessions := []api.Session{{ID: "s1", Title: "greeting", CreatedAt: "2026-10-14T09:30:00"}, {ID: "s2", Title: "trees"}}
		for i := 1; i <= f.created; i++ {
			sessions = append(sessions, api.Session{ID: fmt.Sprintf("new-%d", i)})
		}
		_ = json.NewEncoder(w).Encode(sessions)
	})
	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/s1/messages":
			_, _ = io.WriteString(w, `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)
		case "/api/sessions/s2/messages":
			_, _ = io.WriteString(w, `[{"role":"user","content":"tallest tree?"}]`)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/api/chat_stream", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.streams = append(f.streams, r.URL.Query().Get("session_id"))
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		write := func(payload string) {
			_, _ = io.WriteString(w, "data: "+payload+"\n\n")
			flusher.Flush()
		}
		write(`{"type":"log","loop_type":"plan","role":"agent","content":"looking it up"}`)
		if r.URL.Query().Get("query") == "fail please" {
			write(`{"type":"error","content":"tool crashed"}`)
			return
		}
		write(`{"type":"final_answer","content":"**Redwoods** are the tallest."}`)
	})
	return mux
}

func newTestModel(t *testing.T, sessionID string) (model, *fakeServer) {
	t.Helper()
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.BaseURL = srv.URL + "/api"
	cfg.SessionID = sessionID
	cfg.MarkdownStyle = "notty"
	cfg.StreamIdleTimeout = 5 * time.Second

	client := api.NewClient(cfg.BaseURL, api.WithRequestTimeout(2*time.Second))
	m, err := newModel(context.Background(), cfg, client, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(m.cancel)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model), fake
}

// drive runs cmd and every command it leads to, feeding the app's own
// messages back through Update. Timer-driven messages are dropped so the
// chain ends.
func drive(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 200, "command chain did not settle")
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case sessionsLoadedMsg, historyLoadedMsg, streamOpenedMsg, frameMsg:
			updated, follow := m.Update(msg)
			m = updated.(model)
			queue = append(queue, follow)
		}
	}
	return m
}

func press(t *testing.T, m model, key tea.KeyMsg) model {
	t.Helper()
	updated, cmd := m.Update(key)
	return drive(t, updated.(model), cmd)
}

func enter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func TestStartupLoadsSessionsAndHistory(t *testing.T) {
	m, _ := newTestModel(t, "s1")
	m = drive(t, m, m.Init())

	assert.Len(t, m.coord.List().Items(), 2)
	assert.True(t, m.coord.List().IsActive("s1"))
	assert.Equal(t, "s1", m.scope.ID())
	entries := m.view.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Content)
	assert.Equal(t, "hello", entries[1].Content)
	assert.Contains(t, m.statusLine, "2 messages")
	assert.Contains(t, m.View(), "greeting")
}

func TestFirstQueryCreatesSessionAndStreamsAnswer(t *testing.T) {
	m, fake := newTestModel(t, "")
	m = drive(t, m, m.Init())
	require.True(t, m.view.ShowsPlaceholder())

	m.input.SetValue("which tree is tallest?")
	m = press(t, m, enter())

	assert.Equal(t, 1, fake.created)
	assert.Equal(t, []string{"new-1"}, fake.streams)
	assert.Equal(t, "new-1", m.scope.ID())
	assert.True(t, m.coord.List().IsActive("new-1"))
	assert.Len(t, m.coord.List().Items(), 3)
	assert.Empty(t, m.input.Value())

	snap := m.ctrl.Snapshot()
	assert.Equal(t, query.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, snap.Closes)
	assert.Equal(t, "**Redwoods** are the tallest.", snap.Answer)
	assert.True(t, strings.HasPrefix(m.statusLine, "answer ready in"))
	assert.False(t, m.statusErr)
	assert.Contains(t, m.View(), "Redwoods")

	m.input.SetValue("and the widest?")
	m = press(t, m, enter())
	assert.Equal(t, 1, fake.created)
	assert.Equal(t, []string{"new-1", "new-1"}, fake.streams)
}

func TestErrorEventShowsNotice(t *testing.T) {
	m, _ := newTestModel(t, "s1")
	m = drive(t, m, m.Init())

	m.input.SetValue("fail please")
	m = press(t, m, enter())

	assert.Equal(t, query.PhaseErrored, m.ctrl.Snapshot().Phase)
	assert.True(t, m.statusErr)
	assert.Contains(t, m.statusLine, "query failed")
	last := m.view.Entries()[len(m.view.Entries())-1]
	assert.Equal(t, "tool crashed", last.Err)
	assert.Contains(t, m.View(), "Error: tool crashed")
}

func TestSelectSessionFromSidebar(t *testing.T) {
	m, _ := newTestModel(t, "s1")
	m = drive(t, m, m.Init())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusSessions, m.focus)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, enter())

	assert.Equal(t, focusInput, m.focus)
	assert.Equal(t, "s2", m.scope.ID())
	assert.Equal(t, 1, m.coord.List().ActiveCount())
	entries := m.view.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "tallest tree?", entries[0].Content)
}

func TestSwitchingWhileRunningIsRejected(t *testing.T) {
	m, _ := newTestModel(t, "s1")
	m = drive(t, m, m.Init())

	_, err := m.ctrl.Submit(m.scope, "still thinking")
	require.NoError(t, err)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, enter())
	assert.Equal(t, "s1", m.scope.ID())
	assert.True(t, m.statusErr)
	assert.Contains(t, m.statusLine, "wait for the running query")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, "s1", m.scope.ID())
}

func TestNewConversationResetsScope(t *testing.T) {
	m, fake := newTestModel(t, "s1")
	m = drive(t, m, m.Init())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.False(t, m.scope.HasSession())
	assert.True(t, m.view.ShowsPlaceholder())
	assert.Zero(t, m.coord.List().ActiveCount())
	assert.Zero(t, fake.created)
	assert.Contains(t, m.View(), "New conversation")
}

func TestEmptySubmitIsIgnored(t *testing.T) {
	m, fake := newTestModel(t, "")
	m.input.SetValue("   ")
	m = press(t, m, enter())

	assert.Equal(t, query.PhaseIdle, m.ctrl.Snapshot().Phase)
	assert.Zero(t, fake.created)
	assert.Zero(t, m.view.Len())
}

func TestToggleTrace(t *testing.T) {
	m, _ := newTestModel(t, "s1")
	m = drive(t, m, m.Init())
	m.input.SetValue("tallest?")
	m = press(t, m, enter())

	last := m.view.Entries()[len(m.view.Entries())-1]
	require.NotNil(t, last.Trace)
	require.False(t, last.Trace.Expanded)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	last = m.view.Entries()[len(m.view.Entries())-1]
	assert.True(t, last.Trace.Expanded)
	assert.Contains(t, m.View(), "looking it up")
}

func TestResolveConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compass.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: http://file.example:9000/api\nlog_level: warn\nmarkdown_style: light\n"), 0o644))
	t.Setenv("COMPASS_LOG_LEVEL", "error")
	t.Setenv("COMPASS_BASE_URL", "")

	flags := &flagValues{}
	cmd := bindRootCmd(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--markdown-style", "dark", "--stream-idle-timeout", "30s"}))
	cfg, err := resolveConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://file.example:9000/api", cfg.BaseURL)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "dark", cfg.MarkdownStyle)
	assert.Equal(t, 30*time.Second, cfg.StreamIdleTimeout)
	assert.Equal(t, config.DefaultRequestTimeout, cfg.RequestTimeout)
}

func TestResolveConfigRejectsBadURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	flags := &flagValues{}
	cmd := bindRootCmd(flags)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--base-url", "ftp://example"}))
	_, err := resolveConfig(cmd, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http or https")
}

func TestResolveMarkdownStyle(t *testing.T) {
	assert.Equal(t, "notty", resolveMarkdownStyle("auto", false))
	assert.Equal(t, "light", resolveMarkdownStyle("light", true))
}
