// Package session coordinates which conversation is on screen: the
// session list, the active-session scope and history replay.
package session

import "strings"

// Scope names the session new queries belong to. An empty ID means the
// next query starts a new session.
type Scope struct {
	id string
}

func NewScope(id string) *Scope {
	return &Scope{id: strings.TrimSpace(id)}
}

func (s *Scope) ID() string { return s.id }

func (s *Scope) HasSession() bool { return s.id != "" }

func (s *Scope) Set(id string) { s.id = strings.TrimSpace(id) }

func (s *Scope) Clear() { s.id = "" }
