// Package discord implements the waypost Transport for Discord using the
// Gateway WebSocket. A tenant's "groups" are the text channels of the
// configured guild.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/zulandar/waypost/internal/transport"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for rate-limit retries.
	maxBackoff = 2 * time.Minute
	// memberPageSize is the page size for guild member listing.
	memberPageSize = 1000
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return r.s.GuildChannels(guildID, options...)
}
func (r *realSession) GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	return r.s.GuildMembers(guildID, after, limit, options...)
}

// Transport implements transport.Transport for Discord.
type Transport struct {
	sess        session
	botToken    string
	guildID     string
	mu          sync.Mutex
	connected   bool
	closed      bool
	events      chan transport.StateEvent
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Opts holds parameters for creating a Discord Transport.
type Opts struct {
	BotToken string // Discord bot token
	GuildID  string // guild whose channels act as groups
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Transport.
func New(opts Opts) (*Transport, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.GuildID == "" {
		return nil, fmt.Errorf("discord: guild id is required")
	}

	t := &Transport{
		botToken:    opts.BotToken,
		guildID:     opts.GuildID,
		events:      make(chan transport.StateEvent, 16),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if opts.Session != nil {
		t.sess = opts.Session
	}
	return t, nil
}

// Connect establishes the Discord Gateway WebSocket connection. The opened
// state event fires from the Ready handler, so callers observe readiness
// the same way they do for transports that pair asynchronously.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("discord: transport already closed")
	}
	if t.connected {
		return nil
	}

	if t.sess == nil {
		dg, err := discordgo.New("Bot " + t.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
		t.sess = &realSession{s: dg}
	}

	t.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Printf("discord: connected as %s", r.User.Username)
		t.emit(transport.StateEvent{Kind: transport.KindOpened})
	})
	t.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected")
		t.emit(transport.StateEvent{
			Kind:   transport.KindClosed,
			Reason: transport.ReasonNetworkError,
		})
	})

	if err := t.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	t.connected = true
	return nil
}

// Events returns the state event channel.
func (t *Transport) Events() <-chan transport.StateEvent {
	return t.events
}

// emit delivers a state event unless the transport is closed. Drops the
// event when the buffer is full rather than blocking the gateway handler.
func (t *Transport) emit(ev transport.StateEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		log.Printf("discord: event buffer full, dropping %v", ev.Kind)
	}
}

// SendGroupMessage posts text to a channel, retrying on rate limits.
func (t *Transport) SendGroupMessage(ctx context.Context, groupID, text string) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	t.mu.Unlock()

	err := t.retryOnRateLimit(ctx, func() error {
		_, sendErr := t.sess.ChannelMessageSend(groupID, text)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Groups lists the guild's text channels.
func (t *Transport) Groups(ctx context.Context) ([]transport.GroupInfo, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	t.mu.Unlock()

	var channels []*discordgo.Channel
	err := t.retryOnRateLimit(ctx, func() error {
		var listErr error
		channels, listErr = t.sess.GuildChannels(t.guildID)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("discord: list channels: %w", err)
	}

	var out []transport.GroupInfo
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		out = append(out, transport.GroupInfo{
			ID:   ch.ID,
			Name: ch.Name,
		})
	}
	return out, nil
}

// GroupParticipants lists the guild's members. Discord text channels share
// guild membership, so the same roster applies to every group.
func (t *Transport) GroupParticipants(ctx context.Context, groupID string) ([]transport.Participant, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	t.mu.Unlock()

	var out []transport.Participant
	after := ""
	for {
		var members []*discordgo.Member
		err := t.retryOnRateLimit(ctx, func() error {
			var listErr error
			members, listErr = t.sess.GuildMembers(t.guildID, after, memberPageSize)
			return listErr
		})
		if err != nil {
			return nil, fmt.Errorf("discord: list members: %w", err)
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			name := m.Nick
			if name == "" && m.User != nil {
				name = m.User.Username
			}
			var id string
			if m.User != nil {
				id = m.User.ID
			}
			out = append(out, transport.Participant{ID: id, Name: name})
		}
		if len(members) < memberPageSize {
			break
		}
		last := members[len(members)-1]
		if last.User == nil {
			break
		}
		after = last.User.ID
	}
	return out, nil
}

// Close shuts the gateway connection and the event stream down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	sess := t.sess
	close(t.events)
	t.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			return fmt.Errorf("discord: close gateway: %w", err)
		}
	}
	return nil
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (t *Transport) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * t.baseBackoff
		if wait > t.maxBackoff {
			wait = t.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
