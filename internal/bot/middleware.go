package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/handler"
	"telegram-points-bot/internal/ratelimit"
)

// Rejection replies for admin commands.
const (
	replyGroupNotAdmin = "🚫 Only admins can use this."
	replyNotAuthorized = "🚫 Not authorized."
)

// incidentReply is sent when a handler fails. The ref lets operators find the log line.
func incidentReply(id string) string {
	return fmt.Sprintf("⚠️ Something went wrong, please try again later. (ref %s)", id)
}

// ErrorBoundaryMiddleware recovers panics and handler errors, logs them
// under an incident id and replies with a generic message. It always
// returns nil so one update never stops the poller.
func ErrorBoundaryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err == nil {
					return
				}

				id := uuid.NewString()
				event := log.Error().Err(err).Str("incident", id).Str("text", c.Text())
				if sender := c.Sender(); sender != nil {
					event = event.Int64("user_id", sender.ID)
				}
				if chat := c.Chat(); chat != nil {
					event = event.Int64("chat_id", chat.ID)
				}
				event.Msg("Handler failed")

				if replyErr := c.Reply(incidentReply(id)); replyErr != nil {
					log.Warn().Err(replyErr).Str("incident", id).Msg("Failed to send error reply")
				}
				err = nil
			}()
			return next(c)
		}
	}
}

// TimeoutMiddleware bounds each update with a deadline that store calls honour.
func TimeoutMiddleware(timeout time.Duration) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			handler.WithRequestContext(c, ctx)
			return next(c)
		}
	}
}

// seenUsers tracks users who have used the bot in whitelisted groups.
// They may then use the bot in private chat.
type seenUsers struct {
	mu    sync.RWMutex
	users map[int64]struct{}
}

func (s *seenUsers) add(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

func (s *seenUsers) has(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// WhitelistMiddleware ignores updates from chats outside the whitelist.
// Private chats pass when the whitelist is empty, for the configured admin,
// or for users already seen in an allowed group.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	seen := &seenUsers{users: make(map[int64]struct{})}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()

			if chat == nil || sender == nil {
				return nil
			}

			if chat.Type == tele.ChatPrivate {
				if len(cfg.Whitelist.Chats) == 0 || cfg.IsPrivilegedUser(sender.ID) || seen.has(sender.ID) {
					return next(c)
				}
				log.Debug().
					Int64("user_id", sender.ID).
					Msg("Ignoring private chat from user not seen in a whitelisted group")
				return nil
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}

			seen.add(sender.ID)
			return next(c)
		}
	}
}

// RateLimitMiddleware drops updates from users over their command budget.
// Limiter failures let the update through.
func RateLimitMiddleware(limiter ratelimit.Limiter) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			allowed, err := limiter.Allow(handler.RequestContext(c), sender.ID)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Rate limiter unavailable")
				return next(c)
			}
			if !allowed {
				log.Debug().Int64("user_id", sender.ID).Msg("Rate limited")
				return nil
			}
			return next(c)
		}
	}
}

// AdminChecker decides whether user may run admin commands in chat.
type AdminChecker interface {
	IsAdmin(chat *tele.Chat, user *tele.User) (bool, error)
}

// ChatMemberFetcher looks up a user's membership in a chat.
// *tele.Bot satisfies it.
type ChatMemberFetcher interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// ChatAdminChecker uses Telegram's live member status in groups and the
// configured admin id everywhere else.
type ChatAdminChecker struct {
	members ChatMemberFetcher
	cfg     *config.Config
}

// NewChatAdminChecker creates a new ChatAdminChecker.
func NewChatAdminChecker(members ChatMemberFetcher, cfg *config.Config) *ChatAdminChecker {
	return &ChatAdminChecker{members: members, cfg: cfg}
}

// IsAdmin implements AdminChecker.
func (a *ChatAdminChecker) IsAdmin(chat *tele.Chat, user *tele.User) (bool, error) {
	if !isGroupChat(chat) {
		return a.cfg.IsPrivilegedUser(user.ID), nil
	}

	member, err := a.members.ChatMemberOf(chat, user)
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.Role == tele.Creator || member.Role == tele.Administrator, nil
}

func isGroupChat(chat *tele.Chat) bool {
	return chat.Type == tele.ChatGroup || chat.Type == tele.ChatSuperGroup
}

// AdminMiddleware rejects callers that checker does not recognise as admins.
func AdminMiddleware(checker AdminChecker) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()
			if sender == nil || chat == nil {
				return nil
			}

			ok, err := checker.IsAdmin(chat, sender)
			if err != nil {
				return fmt.Errorf("admin check: %w", err)
			}
			if !ok {
				log.Warn().
					Int64("user_id", sender.ID).
					Int64("chat_id", chat.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				if isGroupChat(chat) {
					return c.Reply(replyGroupNotAdmin)
				}
				return c.Reply(replyNotAuthorized)
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			return next(c)
		}
	}
}
