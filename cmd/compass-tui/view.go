package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const keyHints = "Keys: Enter send · Ctrl+N new conversation · Tab sessions · Ctrl+R refresh · Ctrl+T trace · PgUp/PgDn scroll · Ctrl+C quit"

func (m model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	input := m.renderInput()
	footer := m.renderFooter()
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer))
}

func (m *model) renderHeader() string {
	current := "new conversation"
	if id := m.scope.ID(); id != "" {
		current = "session " + id
		for _, item := range m.coord.List().Items() {
			if item.ID == id {
				current = sessionLabel(item)
				break
			}
		}
	}
	segments := []string{
		m.theme.brand.Render("Compass"),
		m.theme.helpText.Render(" " + compactSingleLine(current, 60)),
	}
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	leftWidth, rightWidth := paneWidths(maxInt(40, m.width-4))

	sessionsPanel := m.theme.panel
	timelinePanel := m.theme.panelFocused
	if m.focus == focusSessions {
		sessionsPanel, timelinePanel = m.theme.panelFocused, m.theme.panel
	}
	left := sessionsPanel.Width(leftWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Sessions") + "\n" + m.sidebar.View(),
	)
	right := timelinePanel.Width(rightWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Conversation") + "\n" + m.timeline.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	inputView := m.input.View()
	if m.ctrl.Running() {
		inputView = m.spinner.View() + " thinking... " + inputView
	} else if m.coord.Loading() {
		inputView = m.spinner.View() + " loading... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	if m.statusErr {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + m.theme.helpText.Render(keyHints))
}

// renderPanes refreshes both viewports, following the conversation when it
// was already at the bottom or a new entry asked for it.
func (m *model) renderPanes() {
	prevYOffset := m.timeline.YOffset
	prevAtBottom := m.timeline.AtBottom()

	contentHeight := maxInt(8, m.height-12)
	leftWidth, rightWidth := paneWidths(maxInt(40, m.width-4))
	m.sidebar.Width = maxInt(10, leftWidth-4)
	m.sidebar.Height = maxInt(5, contentHeight-3)
	m.timeline.Width = maxInt(20, rightWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-3)

	if m.renderer.Width() != m.timeline.Width {
		if err := m.renderer.SetWidth(m.timeline.Width); err != nil {
			m.log.Warn().Err(err).Int("width", m.timeline.Width).Msg("resize markdown renderer")
		}
	}

	m.timeline.SetContent(m.view.View(m.renderer))
	if m.view.TakeScroll() || prevAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevYOffset)
	}
	m.sidebar.SetContent(m.renderSessions())
}

func (m *model) renderSessions() string {
	list := m.coord.List()
	items := list.Items()
	if len(items) == 0 {
		return m.theme.helpText.Render("No sessions yet.")
	}
	width := uint(maxInt(4, m.sidebar.Width-2))
	lines := make([]string, 0, len(items)*2)
	for i, item := range items {
		marker := "  "
		style := m.theme.sessionItem
		if list.IsActive(item.ID) {
			marker = "● "
			style = m.theme.sessionActive
		}
		if m.focus == focusSessions && i == list.Cursor() {
			style = m.theme.sessionCursor
		}
		lines = append(lines, style.Render(truncate.StringWithTail(marker+sessionLabel(item), width, "…")))
		if created := item.Created(); !created.IsZero() {
			lines = append(lines, m.theme.helpText.Render("  "+created.Local().Format("Jan 02 15:04")))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

func paneWidths(contentWidth int) (left int, right int) {
	left = clampInt(contentWidth/4, 24, 40)
	right = contentWidth - left - 1
	if right < 30 {
		right = 30
		left = maxInt(12, contentWidth-right-1)
	}
	return left, right
}

func compactSingleLine(text string, limit int) string {
	single := strings.Join(strings.Fields(text), " ")
	if limit > 0 && len([]rune(single)) > limit {
		return string([]rune(single)[:maxInt(0, limit-1)]) + "…"
	}
	return single
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
