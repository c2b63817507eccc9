// Package bot provides the Telegram bot initialization, middleware and
// handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/handler"
	"telegram-points-bot/internal/ratelimit"
	"telegram-points-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	limiter ratelimit.Limiter
	admins  AdminChecker

	accountHandler *handler.AccountHandler
	adminHandler   *handler.AdminHandler
	rankingHandler *handler.RankingHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config  *config.Config
	Scores  *service.ScoreService
	Limiter ratelimit.Limiter
	// Admins overrides the live chat-member check.
	Admins AdminChecker
	// Offline skips the getMe call at construction.
	Offline bool
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pollTimeout := deps.Config.Bot.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}

	pref := tele.Settings{
		Token:     deps.Config.Bot.Token,
		Poller:    &tele.LongPoller{Timeout: pollTimeout},
		ParseMode: tele.ModeHTML,
		Offline:   deps.Offline,
		OnError: func(err error, c tele.Context) {
			event := log.Error().Err(err)
			if c != nil && c.Chat() != nil {
				event = event.Int64("chat_id", c.Chat().ID)
			}
			event.Msg("Unhandled bot error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     teleBot,
		cfg:     deps.Config,
		limiter: deps.Limiter,
		admins:  deps.Admins,
	}
	if b.admins == nil {
		b.admins = NewChatAdminChecker(teleBot, deps.Config)
	}

	b.accountHandler = handler.NewAccountHandler(deps.Scores)
	b.adminHandler = handler.NewAdminHandler(deps.Scores)
	b.rankingHandler = handler.NewRankingHandler(deps.Scores)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware. The error boundary is
// outermost so it sees failures from everything below it.
func (b *Bot) registerMiddleware() {
	b.bot.Use(ErrorBoundaryMiddleware())

	handlerTimeout := b.cfg.Bot.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}
	b.bot.Use(TimeoutMiddleware(handlerTimeout))

	b.bot.Use(LoggingMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))

	if b.limiter != nil {
		b.bot.Use(RateLimitMiddleware(b.limiter))
	}
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/myid", b.accountHandler.HandleMyID)
	b.bot.Handle("/mypoints", b.accountHandler.HandleMyPoints)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/leaderboard", b.rankingHandler.HandleLeaderboard)

	// Authorization runs before argument validation.
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.admins))
	adminGroup.Handle("/award", b.adminHandler.HandleAward, handler.ValidateArgs(handler.AwardSpec))
	adminGroup.Handle("/reset", b.adminHandler.HandleReset, handler.ValidateArgs(handler.ResetSpec))
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
