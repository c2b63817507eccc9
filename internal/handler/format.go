package handler

import (
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/badge"
	"telegram-points-bot/internal/model"
)

// groupName returns the chat title used in replies and stored rows.
func groupName(chat *tele.Chat) string {
	if chat == nil || chat.Title == "" {
		return "Private"
	}
	return chat.Title
}

// esc escapes user-supplied text for HTML parse mode.
func esc(s string) string {
	return html.EscapeString(s)
}

// formatRemaining renders a cooldown as "3h 12m", or "<1m" under a minute.
func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// renderLeaderboard builds the leaderboard reply.
func renderLeaderboard(group string, scores []*model.UserScore) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>🏆 Leaderboard – %s:</b>\n\n", esc(group))
	for i, s := range scores {
		fmt.Fprintf(&sb, "%d. @%s — <b>%d pts</b> %s\n", i+1, esc(s.Username), s.Points, badge.For(s.Points))
	}
	return sb.String()
}
