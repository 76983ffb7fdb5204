package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"compass/internal/query"
	"compass/internal/session"
)

type sessionsLoadedMsg struct {
	listing session.Listing
}

type historyLoadedMsg struct {
	history session.History
}

type streamOpenedMsg struct {
	opened query.Opened
}

type frameMsg struct {
	received query.Received
}

// Each command below blocks off the update loop and only returns data; the
// model applies it when the message comes back.

func (m model) loadSessionsCmd() tea.Cmd {
	coord := m.coord
	ctx := m.ctx
	return func() tea.Msg {
		return sessionsLoadedMsg{listing: coord.LoadSessions(ctx)}
	}
}

func (m model) fetchHistoryCmd(pending session.Pending) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return historyLoadedMsg{history: pending.Fetch(ctx)}
	}
}

func (m model) openStreamCmd(ticket query.Ticket) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return streamOpenedMsg{opened: ticket.Open(ctx)}
	}
}

func (m model) waitFrameCmd() tea.Cmd {
	rcv, ok := m.ctrl.Receiver()
	if !ok {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return frameMsg{received: rcv.Wait(ctx)}
	}
}
