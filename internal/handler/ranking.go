package handler

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/service"
)

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	scores *service.ScoreService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(scores *service.ScoreService) *RankingHandler {
	return &RankingHandler{scores: scores}
}

// HandleLeaderboard handles the /leaderboard command.
func (h *RankingHandler) HandleLeaderboard(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	scores, err := h.scores.Leaderboard(RequestContext(c), chat.ID)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}
	if len(scores) == 0 {
		return c.Reply("📉 No leaderboard data for this group.")
	}

	return c.Reply(renderLeaderboard(groupName(chat), scores))
}
