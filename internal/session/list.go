package session

import "compass/internal/api"

// List is the session sidebar model. At most one item is active.
type List struct {
	items  []api.Session
	active string
	cursor int
}

func NewList() *List { return &List{} }

func (l *List) Items() []api.Session {
	out := make([]api.Session, len(l.items))
	copy(out, l.items)
	return out
}

// Replace swaps in a fresh listing and keeps the active marker.
func (l *List) Replace(items []api.Session) {
	l.items = append([]api.Session(nil), items...)
	if idx := l.index(l.active); idx >= 0 {
		l.cursor = idx
	}
	l.clampCursor()
}

// Select marks id as the only active item.
func (l *List) Select(id string) {
	l.active = id
	if idx := l.index(id); idx >= 0 {
		l.cursor = idx
	}
}

func (l *List) Deselect() { l.active = "" }

func (l *List) Active() (string, bool) {
	return l.active, l.active != ""
}

func (l *List) IsActive(id string) bool {
	return id != "" && id == l.active
}

// ActiveCount is the number of items marked active.
func (l *List) ActiveCount() int {
	n := 0
	for _, item := range l.items {
		if l.IsActive(item.ID) {
			n++
		}
	}
	return n
}

func (l *List) Cursor() int { return l.cursor }

func (l *List) MoveCursor(delta int) {
	l.cursor += delta
	l.clampCursor()
}

// CursorItem returns the item under the cursor.
func (l *List) CursorItem() (api.Session, bool) {
	if l.cursor < 0 || l.cursor >= len(l.items) {
		return api.Session{}, false
	}
	return l.items[l.cursor], true
}

func (l *List) index(id string) int {
	if id == "" {
		return -1
	}
	for i, item := range l.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (l *List) clampCursor() {
	if l.cursor >= len(l.items) {
		l.cursor = len(l.items) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}
