package bot

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/pkg/teletest"
)

// fakeMembers returns a fixed role for every lookup.
type fakeMembers struct {
	role  tele.MemberStatus
	err   error
	calls int
}

func (f *fakeMembers) ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &tele.ChatMember{Role: f.role}, nil
}

var allRoles = []tele.MemberStatus{
	tele.Creator, tele.Administrator, tele.Member, tele.Restricted, tele.Left, tele.Kicked,
}

// TestAdminCheckGroupRoleProperty checks that in groups only creators and
// administrators pass, regardless of the configured admin id.
func TestAdminCheckGroupRoleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom(allRoles).Draw(t, "role")
		chatType := rapid.SampledFrom([]tele.ChatType{tele.ChatGroup, tele.ChatSuperGroup}).Draw(t, "chatType")
		userID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "userID")
		adminID := rapid.SampledFrom([]int64{userID, userID + 1}).Draw(t, "adminID")

		checker := NewChatAdminChecker(&fakeMembers{role: role}, &config.Config{Bot: config.BotConfig{AdminID: adminID}})
		ok, err := checker.IsAdmin(&tele.Chat{ID: -100, Type: chatType}, &tele.User{ID: userID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := role == tele.Creator || role == tele.Administrator
		if ok != expected {
			t.Fatalf("role %q in %q: expected %v, got %v", role, chatType, expected, ok)
		}
	})
}

// TestAdminCheckPrivateProperty checks that outside groups only the
// configured admin id passes and the member API is never called.
func TestAdminCheckPrivateProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "adminID")
		userID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "userID")
		chatType := rapid.SampledFrom([]tele.ChatType{tele.ChatPrivate, tele.ChatChannel}).Draw(t, "chatType")

		members := &fakeMembers{role: tele.Creator}
		checker := NewChatAdminChecker(members, &config.Config{Bot: config.BotConfig{AdminID: adminID}})
		ok, err := checker.IsAdmin(&tele.Chat{ID: userID, Type: chatType}, &tele.User{ID: userID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != (userID == adminID) {
			t.Fatalf("user %d admin %d: got %v", userID, adminID, ok)
		}
		if members.calls != 0 {
			t.Fatalf("member API called %d times for %q chat", members.calls, chatType)
		}
	})
}

// TestAdminMiddlewareRejectionNeverRunsHandlerProperty checks that rejected
// callers always get a rejection reply and the handler never runs.
func TestAdminMiddlewareRejectionNeverRunsHandlerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.SampledFrom([]tele.MemberStatus{tele.Member, tele.Restricted, tele.Left, tele.Kicked}).Draw(t, "role")
		inGroup := rapid.Bool().Draw(t, "inGroup")

		cfg := &config.Config{Bot: config.BotConfig{AdminID: 999}}
		mw := AdminMiddleware(NewChatAdminChecker(&fakeMembers{role: role}, cfg))

		ran := false
		h := mw(func(tele.Context) error { ran = true; return nil })

		chat := teletest.Private(5)
		want := replyNotAuthorized
		if inGroup {
			chat = teletest.Group(-5, "G")
			want = replyGroupNotAdmin
		}
		c := teletest.New("/award @x 1", teletest.User(5, "x"), chat)
		if err := h(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ran {
			t.Fatal("handler ran for a non-admin")
		}
		if c.LastReply() != want {
			t.Fatalf("expected %q, got %q", want, c.LastReply())
		}
	})
}

// TestWhitelistEnforcementProperty checks group updates pass iff the chat
// is whitelisted.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := rapid.SliceOfNDistinct(rapid.Int64Range(-1_000_000, -1), 1, 10, rapid.ID[int64]).Draw(t, "chats")
		chatID := rapid.Int64Range(-1_000_000, -1).Draw(t, "chatID")

		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}
		ran := false
		h := WhitelistMiddleware(cfg)(func(tele.Context) error { ran = true; return nil })

		if err := h(teletest.New("/leaderboard", teletest.User(1, "a"), teletest.Group(chatID, "G"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ran != cfg.IsChatAllowed(chatID) {
			t.Fatalf("chat %d whitelist %v: handler ran=%v", chatID, chats, ran)
		}
	})
}

// TestEmptyWhitelistAllowsAllChatsProperty checks the empty-whitelist case.
func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		chatID := rapid.Int64().Draw(t, "chatID")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("with empty whitelist, chat %d should be allowed", chatID)
		}
	})
}

func TestChatAdminChecker_MemberLookupError(t *testing.T) {
	boom := errors.New("telegram down")
	checker := NewChatAdminChecker(&fakeMembers{err: boom}, &config.Config{})

	_, err := checker.IsAdmin(&tele.Chat{ID: -1, Type: tele.ChatGroup}, &tele.User{ID: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}
