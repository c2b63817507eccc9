// Package handler provides Telegram bot command handlers.
package handler

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/badge"
	"telegram-points-bot/internal/service"
)

// AccountHandler handles the caller's own score commands.
type AccountHandler struct {
	scores *service.ScoreService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(scores *service.ScoreService) *AccountHandler {
	return &AccountHandler{scores: scores}
}

// HandleStart handles the /start command.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	title := "Private Chat"
	if chat := c.Chat(); chat != nil && chat.Title != "" {
		title = chat.Title
	}

	return c.Reply(fmt.Sprintf(
		"👋 <b>Welcome to Ranking Bot!</b>\n\n"+
			"📍 Group: <b>%s</b>\n"+
			"📊 Use <code>/leaderboard</code> to view top scorers in this group\n"+
			"🎯 Use <code>/mypoints</code> to check your score\n"+
			"🏅 Admins: <code>/award</code>, <code>/reset</code>\n"+
			"🎁 Use <code>/daily</code> to claim your bonus!",
		esc(title),
	))
}

// HandleMyID handles the /myid command.
func (h *AccountHandler) HandleMyID(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	return c.Reply(fmt.Sprintf("🆔 Your Telegram ID: <code>%d</code>", sender.ID))
}

// HandleMyPoints handles the /mypoints command.
// A user with no row is shown 0 points.
func (h *AccountHandler) HandleMyPoints(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if sender.Username == "" {
		return c.Reply("⚠️ Set a public @username to track points.")
	}

	points, err := h.scores.Points(RequestContext(c), sender.Username, c.Chat().ID)
	if err != nil {
		return fmt.Errorf("mypoints: %w", err)
	}

	return c.Reply(fmt.Sprintf(
		"📦 <b>@%s</b>\nPoints: <b>%d</b>\nBadge: %s",
		esc(sender.Username), points, badge.For(points),
	))
}

// HandleDaily handles the /daily command.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if sender.Username == "" {
		return c.Reply("⚠️ Set a @username first.")
	}

	chat := c.Chat()
	res, err := h.scores.ClaimDaily(RequestContext(c), sender.Username, chat.ID, groupName(chat))
	if err != nil {
		return fmt.Errorf("daily: %w", err)
	}

	if !res.Granted {
		return c.Reply(fmt.Sprintf(
			"🕒 You already claimed your daily bonus today.\nNext claim in <b>%s</b>.",
			esc(formatRemaining(res.Remaining)),
		))
	}

	return c.Reply(fmt.Sprintf("🎁 You claimed <b>%d pts</b> today in this group!", res.Bonus))
}
