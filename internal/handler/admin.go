package handler

import (
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/service"
)

// AdminHandler handles admin-only commands. Authorization and argument
// validation run as middleware before these handlers.
type AdminHandler struct {
	scores *service.ScoreService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(scores *service.ScoreService) *AdminHandler {
	return &AdminHandler{scores: scores}
}

// HandleAward handles the /award command.
// Format: /award @username <points>
func (h *AdminHandler) HandleAward(c tele.Context) error {
	args, ok := ParsedArgs(c)
	if !ok {
		var err error
		if args, err = AwardSpec.Parse(c.Args()); err != nil {
			return c.Reply(AwardSpec.Reply(err))
		}
	}

	sender := c.Sender()
	giver := ""
	if sender != nil {
		giver = sender.Username
	}
	chat := c.Chat()
	group := groupName(chat)
	username := args.Username("username")
	points := args.Int("points")

	_, err := h.scores.Award(RequestContext(c), service.AwardRequest{
		Giver:     giver,
		Username:  username,
		ChatID:    chat.ID,
		GroupName: group,
		Points:    points,
	})
	if err != nil {
		return fmt.Errorf("award: %w", err)
	}

	return c.Reply(fmt.Sprintf(
		"✅ <b>@%s</b> received <b>%d pts</b> in <b>%s</b>!",
		esc(username), points, esc(group),
	))
}

// HandleReset handles the /reset command.
// Format: /reset @username
func (h *AdminHandler) HandleReset(c tele.Context) error {
	args, ok := ParsedArgs(c)
	if !ok {
		var err error
		if args, err = ResetSpec.Parse(c.Args()); err != nil {
			return c.Reply(ResetSpec.Reply(err))
		}
	}

	username := args.Username("username")
	chat := c.Chat()

	found, err := h.scores.Reset(RequestContext(c), username, chat.ID)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	event := log.Info().
		Str("username", username).
		Int64("chat_id", chat.ID).
		Bool("found", found)
	if sender := c.Sender(); sender != nil {
		event = event.Int64("admin_id", sender.ID)
	}
	event.Msg("Admin reset executed")

	return c.Reply(fmt.Sprintf("♻️ <b>@%s</b>'s points reset to 0 in this group.", esc(username)))
}
