package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compass/internal/api"
	"compass/internal/event"
)

func newTestRenderer(t *testing.T, width int) *Renderer {
	t.Helper()
	r, err := New(width, "notty", DefaultStyles())
	require.NoError(t, err)
	return r
}

func TestAssistantUsesAnswerContainer(t *testing.T) {
	r := newTestRenderer(t, 60)
	assert.Equal(t, r.Answer("hello"), r.Render(api.RoleAssistant, "hello"))
	assert.Contains(t, r.Render(api.RoleAssistant, "hello"), "hello")
}

func TestAnswerRendersMarkdownHeading(t *testing.T) {
	r := newTestRenderer(t, 60)
	out := r.Answer("### Done")
	assert.Contains(t, out, "Done")
}

func TestUserBlockIsLabelled(t *testing.T) {
	r := newTestRenderer(t, 60)
	out := r.Render(api.RoleUser, "  hi  ")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "You")
	assert.Contains(t, lines[1], "hi")
}

func TestErrorPrefix(t *testing.T) {
	r := newTestRenderer(t, 60)
	assert.Contains(t, r.Error("boom"), "Error: boom")
}

func TestLogTruncatesToWidth(t *testing.T) {
	r := newTestRenderer(t, 40)
	out := r.Log(event.LogEntry{LoopType: "INNER", Role: "Tool Result", Content: strings.Repeat("word ", 50)})
	assert.Contains(t, out, "[INNER]")
	assert.Contains(t, out, "Tool Result:")
	assert.LessOrEqual(t, len([]rune(out)), 60)
}

func TestSetWidthClampsAndKeepsRenderer(t *testing.T) {
	r := newTestRenderer(t, 5)
	assert.Equal(t, minWidth, r.Width())
	require.NoError(t, r.SetWidth(80))
	assert.Equal(t, 80, r.Width())
}

func TestLogFullWrapsAndIndents(t *testing.T) {
	r := newTestRenderer(t, 40)
	out := r.LogFull(event.LogEntry{LoopType: "INNER", Role: "agent", Content: strings.Repeat("word ", 30) + "end\nnext"}, 2)
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "  [INNER] agent: word"))
	assert.Equal(t, "next", strings.TrimSpace(lines[len(lines)-1]))
	for _, line := range lines {
		assert.LessOrEqual(t, len([]rune(line)), 40)
	}
	assert.Contains(t, out, "end")
}

func TestTraceBodiesDropEmphasisMarkers(t *testing.T) {
	r := newTestRenderer(t, 60)
	entry := event.LogEntry{LoopType: "OUTER", Role: "agent", Content: "**decision**: use `search`"}
	for _, out := range []string{r.Log(entry), r.LogFull(entry, 0)} {
		assert.Contains(t, out, "decision: use search")
		assert.NotContains(t, out, "*")
		assert.NotContains(t, out, "`")
	}
}
