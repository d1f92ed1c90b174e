package history

import (
	"strings"
	"time"

	"pagechat/internal/chat"
)

const (
	titleMaxLen  = 60
	titleCutLen  = 57
	titleEllipse = "..."
)

// GenerateTitle derives a session title from its content:
//  1. first user message, truncated to 57 runes plus an ellipsis when longer
//     than 60;
//  2. otherwise "Chat about: <page title>";
//  3. otherwise "Chat from <local time>".
//
// Pure except for the clock fallback; now is injectable for tests.
func GenerateTitle(session chat.Session, now time.Time) string {
	if content, ok := session.FirstUserMessage(); ok {
		title := strings.TrimSpace(content)
		if title != "" {
			runes := []rune(title)
			if len(runes) > titleMaxLen {
				return string(runes[:titleCutLen]) + titleEllipse
			}
			return title
		}
	}

	if session.PageInfo != nil && strings.TrimSpace(session.PageInfo.Title) != "" {
		return "Chat about: " + session.PageInfo.Title
	}

	return "Chat from " + now.Format("Jan 2, 2006 3:04 PM")
}
