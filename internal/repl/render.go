package repl

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Theme holds the REPL styles.
type Theme struct {
	UserStyle      lipgloss.Style
	AssistantStyle lipgloss.Style
	NoticeStyle    lipgloss.Style
	ErrorStyle     lipgloss.Style
	TitleStyle     lipgloss.Style
	MutedStyle     lipgloss.Style
}

// DefaultTheme 默认主题 / DefaultTheme is the default theme.
func DefaultTheme() Theme {
	return Theme{
		UserStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true),
		AssistantStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		NoticeStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		ErrorStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		TitleStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true),
		MutedStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

// RenderMarkdown 使用 Glamour 渲染 markdown 文本
// RenderMarkdown renders markdown text using Glamour; on any renderer failure
// the raw text is returned unchanged.
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
