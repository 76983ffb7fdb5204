// Package render turns transcript content into styled terminal text.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"compass/internal/api"
	"compass/internal/event"
)

const minWidth = 20

// Styles holds the lipgloss styles used for transcript blocks.
type Styles struct {
	UserLabel   lipgloss.Style
	UserBody    lipgloss.Style
	Answer      lipgloss.Style
	Error       lipgloss.Style
	TraceTag    lipgloss.Style
	TraceRole   lipgloss.Style
	TraceBody   lipgloss.Style
	TraceStatus lipgloss.Style
}

func DefaultStyles() Styles {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	return Styles{
		UserLabel: lipgloss.NewStyle().Foreground(mint).Bold(true),
		UserBody:  lipgloss.NewStyle(),
		Answer: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(blue).
			PaddingLeft(1),
		Error:       lipgloss.NewStyle().Foreground(pink).Bold(true),
		TraceTag:    lipgloss.NewStyle().Foreground(blue),
		TraceRole:   lipgloss.NewStyle().Foreground(mint),
		TraceBody:   lipgloss.NewStyle().Foreground(muted),
		TraceStatus: lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

// Renderer is not safe for concurrent use; the UI loop owns it.
type Renderer struct {
	md     *glamour.TermRenderer
	style  string
	width  int
	styles Styles
}

// New creates a renderer wrapping at width. style is a glamour standard
// style name or "auto".
func New(width int, style string, styles Styles) (*Renderer, error) {
	r := &Renderer{style: style, styles: styles}
	if err := r.SetWidth(width); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Width() int { return r.width }

// SetWidth recreates the markdown renderer when the wrap width changes.
func (r *Renderer) SetWidth(width int) error {
	if width < minWidth {
		width = minWidth
	}
	if r.md != nil && width == r.width {
		return nil
	}
	md, err := glamour.NewTermRenderer(
		glamourOption(r.style),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return err
	}
	r.md = md
	r.width = width
	return nil
}

// Render renders one transcript block. Assistant content always goes
// through Answer so history and live turns look the same.
func (r *Renderer) Render(role api.Role, content string) string {
	switch role {
	case api.RoleAssistant:
		return r.Answer(content)
	default:
		label := r.styles.UserLabel.Render("You")
		body := r.styles.UserBody.Render(wordwrap.String(strings.TrimSpace(content), r.width))
		return label + "\n" + body
	}
}

// Answer renders markdown inside the answer container.
func (r *Renderer) Answer(markdown string) string {
	return r.styles.Answer.Render(r.markdown(markdown))
}

// Error renders an inline error message.
func (r *Renderer) Error(content string) string {
	text := "Error: " + strings.TrimSpace(content)
	return r.styles.Error.Render(wordwrap.String(text, r.width))
}

// Log renders one trace line, truncated to the current width.
func (r *Renderer) Log(entry event.LogEntry) string {
	head := r.logHead(entry)
	body := strings.Join(strings.Fields(plainText(entry.Content)), " ")
	room := r.width - lipgloss.Width(head) - 1
	if room < 8 {
		room = 8
	}
	return head + " " + r.styles.TraceBody.Render(truncate.StringWithTail(body, uint(room), "…"))
}

// LogFull renders a whole trace entry wrapped to the current width less
// indent. Line breaks in the content are kept and every line is indented,
// continuation lines aligned under the body.
func (r *Renderer) LogFull(entry event.LogEntry, indent int) string {
	head := r.logHead(entry)
	hang := lipgloss.Width(head) + 1
	room := r.width - indent - hang
	if room < minWidth/2 {
		room = minWidth / 2
	}
	body := strings.TrimSpace(plainText(entry.Content))
	body = wrap.String(wordwrap.String(body, room), room)

	margin := strings.Repeat(" ", indent)
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		line = r.styles.TraceBody.Render(strings.TrimRight(line, " "))
		if i == 0 {
			out = append(out, margin+head+" "+line)
			continue
		}
		out = append(out, margin+strings.Repeat(" ", hang)+line)
	}
	return strings.Join(out, "\n")
}

func (r *Renderer) logHead(entry event.LogEntry) string {
	tag := r.styles.TraceTag.Render(fmt.Sprintf("[%s]", nullCoalesce(entry.LoopType, "-")))
	role := r.styles.TraceRole.Render(nullCoalesce(entry.Role, "agent") + ":")
	return tag + " " + role
}

// Status renders a trace summary label.
func (r *Renderer) Status(label string) string {
	return r.styles.TraceStatus.Render(label)
}

func (r *Renderer) markdown(text string) string {
	out, err := r.md.Render(text)
	if err != nil {
		return wordwrap.String(text, r.width)
	}
	return strings.Trim(out, "\n")
}

func glamourOption(style string) glamour.TermRendererOption {
	switch style {
	case "dark", "light", "notty":
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithAutoStyle()
	}
}

// Trace bodies are shown as plain text, so inline markdown markers are
// dropped rather than printed literally.
var emphasisMarkers = strings.NewReplacer("**", "", "`", "")

func plainText(s string) string {
	return emphasisMarkers.Replace(s)
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
