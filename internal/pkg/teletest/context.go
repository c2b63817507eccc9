// Package teletest provides a fake telebot context for handler and
// middleware tests.
package teletest

import (
	"fmt"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v3"
)

// Context implements the parts of tele.Context that handlers use.
// Calling any other method panics on the nil embedded interface.
type Context struct {
	tele.Context

	message *tele.Message

	// ReplyErr is returned from Reply and Send when set.
	ReplyErr error

	mu      sync.Mutex
	store   map[string]interface{}
	replies []string
	options [][]interface{}
}

// New builds a context for a text message from user in chat.
func New(text string, user *tele.User, chat *tele.Chat) *Context {
	payload := ""
	if fields := strings.SplitN(text, " ", 2); len(fields) == 2 && strings.HasPrefix(text, "/") {
		payload = strings.TrimSpace(fields[1])
	}
	return &Context{
		message: &tele.Message{
			ID:      1,
			Text:    text,
			Payload: payload,
			Sender:  user,
			Chat:    chat,
		},
		store: make(map[string]interface{}),
	}
}

// User returns a user with a username. An empty username models a user
// without a public handle.
func User(id int64, username string) *tele.User {
	return &tele.User{ID: id, Username: username, FirstName: "Test"}
}

// Group returns a supergroup chat.
func Group(id int64, title string) *tele.Chat {
	return &tele.Chat{ID: id, Type: tele.ChatSuperGroup, Title: title}
}

// Private returns a private chat with the given user id.
func Private(id int64) *tele.Chat {
	return &tele.Chat{ID: id, Type: tele.ChatPrivate}
}

func (c *Context) Message() *tele.Message { return c.message }
func (c *Context) Sender() *tele.User     { return c.message.Sender }
func (c *Context) Chat() *tele.Chat       { return c.message.Chat }
func (c *Context) Text() string           { return c.message.Text }

// Args splits the command payload on whitespace.
func (c *Context) Args() []string {
	if c.message.Payload == "" {
		return nil
	}
	return strings.Fields(c.message.Payload)
}

func (c *Context) Reply(what interface{}, opts ...interface{}) error {
	return c.record(what, opts)
}

func (c *Context) Send(what interface{}, opts ...interface{}) error {
	return c.record(what, opts)
}

func (c *Context) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = val
}

func (c *Context) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

// Replies returns every text sent through Reply or Send.
func (c *Context) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

// LastReply returns the most recent reply, or "" if none.
func (c *Context) LastReply() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

// LastOptions returns the send options of the most recent reply.
func (c *Context) LastOptions() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.options) == 0 {
		return nil
	}
	return c.options[len(c.options)-1]
}

func (c *Context) record(what interface{}, opts []interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, fmt.Sprint(what))
	c.options = append(c.options, opts)
	return c.ReplyErr
}
