// Package transcript holds the conversation shown in the main pane: user
// turns, assistant answers and the per-query thought-process trace.
package transcript

import (
	"fmt"
	"strings"

	"compass/internal/api"
	"compass/internal/event"
	"compass/internal/render"
)

// TraceWindow is how many of the most recent log entries an expanded trace
// shows while its query is still running. A finished trace shows them all.
const TraceWindow = 8

const placeholderText = "New conversation. Ask the agent anything to start a session."

// Trace is the collapsible thought-process block of a live query.
type Trace struct {
	Logs     []event.LogEntry
	Status   string
	Expanded bool
	Live     bool
}

// Entry is one block of the transcript. Live assistant turns carry an ID
// and a Trace; replayed history has neither.
type Entry struct {
	ID      string
	Role    api.Role
	Content string
	Err     string
	Trace   *Trace
}

// Transcript is owned by the UI loop and is not safe for concurrent use.
type Transcript struct {
	entries     []*Entry
	placeholder bool
	scroll      bool
}

func New() *Transcript {
	return &Transcript{placeholder: true}
}

func (t *Transcript) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

func (t *Transcript) Len() int { return len(t.entries) }

// ShowsPlaceholder reports whether the empty new-conversation state is shown.
func (t *Transcript) ShowsPlaceholder() bool {
	return t.placeholder && len(t.entries) == 0
}

// Clear removes every entry without showing the placeholder.
func (t *Transcript) Clear() {
	t.entries = nil
	t.placeholder = false
	t.scroll = true
}

// Reset empties the transcript and shows the new-conversation placeholder.
func (t *Transcript) Reset() {
	t.entries = nil
	t.placeholder = true
	t.scroll = true
}

// AppendHistory replays one persisted message.
func (t *Transcript) AppendHistory(msg api.Message) {
	role := msg.Role
	if role != api.RoleAssistant {
		role = api.RoleUser
	}
	t.entries = append(t.entries, &Entry{Role: role, Content: msg.Content})
}

func (t *Transcript) AppendUser(content string) {
	t.entries = append(t.entries, &Entry{Role: api.RoleUser, Content: content})
	t.scroll = true
}

// OpenTurn starts a live assistant turn with an expanded trace.
func (t *Transcript) OpenTurn(id, status string) {
	t.entries = append(t.entries, &Entry{
		ID:    id,
		Role:  api.RoleAssistant,
		Trace: &Trace{Status: status, Expanded: true, Live: true},
	})
	t.scroll = true
}

func (t *Transcript) AppendLog(id string, entry event.LogEntry) {
	if e := t.turn(id); e != nil {
		e.Trace.Logs = append(e.Trace.Logs, entry)
		t.scroll = true
	}
}

func (t *Transcript) SetStatus(id, label string) {
	if e := t.turn(id); e != nil {
		e.Trace.Status = label
	}
}

func (t *Transcript) CollapseTrace(id string) {
	if e := t.turn(id); e != nil {
		e.Trace.Expanded = false
	}
}

// FinishTurn marks the turn's query as terminal.
func (t *Transcript) FinishTurn(id string) {
	if e := t.turn(id); e != nil {
		e.Trace.Live = false
	}
}

// SetAnswer replaces the turn's answer with markdown.
func (t *Transcript) SetAnswer(id, markdown string) {
	if e := t.turn(id); e != nil {
		e.Content = markdown
		t.scroll = true
	}
}

func (t *Transcript) SetError(id, message string) {
	if e := t.turn(id); e != nil {
		e.Err = message
		t.scroll = true
	}
}

// ToggleLatestTrace expands or collapses the most recent trace.
func (t *Transcript) ToggleLatestTrace() bool {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if tr := t.entries[i].Trace; tr != nil {
			tr.Expanded = !tr.Expanded
			return true
		}
	}
	return false
}

// RequestScroll asks the view to jump to the latest entry.
func (t *Transcript) RequestScroll() { t.scroll = true }

// TakeScroll reports and clears a pending scroll request.
func (t *Transcript) TakeScroll() bool {
	pending := t.scroll
	t.scroll = false
	return pending
}

// View renders the whole transcript.
func (t *Transcript) View(r *render.Renderer) string {
	if len(t.entries) == 0 {
		if t.placeholder {
			return r.Status(placeholderText)
		}
		return ""
	}
	blocks := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		blocks = append(blocks, renderEntry(r, e))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(r *render.Renderer, e *Entry) string {
	if e.Role != api.RoleAssistant {
		return r.Render(api.RoleUser, e.Content)
	}
	parts := []string{}
	if e.Trace != nil {
		parts = append(parts, renderTrace(r, e.Trace))
	}
	if e.Content != "" {
		parts = append(parts, r.Render(api.RoleAssistant, e.Content))
	}
	if e.Err != "" {
		parts = append(parts, r.Error(e.Err))
	}
	return strings.Join(parts, "\n")
}

func renderTrace(r *render.Renderer, tr *Trace) string {
	marker := "▸"
	if tr.Expanded {
		marker = "▾"
	}
	lines := []string{r.Status(fmt.Sprintf("%s Thought process · %s", marker, tr.Status))}
	if !tr.Expanded {
		return lines[0]
	}
	if !tr.Live {
		for _, entry := range tr.Logs {
			lines = append(lines, r.LogFull(entry, 2))
		}
		return strings.Join(lines, "\n")
	}
	logs := tr.Logs
	if hidden := len(logs) - TraceWindow; hidden > 0 {
		lines = append(lines, r.Status(fmt.Sprintf("  … %d earlier steps", hidden)))
		logs = logs[hidden:]
	}
	for _, entry := range logs {
		lines = append(lines, "  "+r.Log(entry))
	}
	return strings.Join(lines, "\n")
}

func (t *Transcript) turn(id string) *Entry {
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.ID == id && e.Trace != nil {
			return e
		}
	}
	return nil
}
