// Package slack implements the waypost Transport for Slack using Socket
// Mode. A tenant's "groups" are the channels the bot is a member of.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/zulandar/waypost/internal/transport"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// conversationPageSize is the page size for channel and member listing.
	conversationPageSize = 200
)

// slackClient abstracts the Slack Web API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetConversations(params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error)
	GetUsersInConversation(params *slackapi.GetUsersInConversationParameters) ([]string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }

// Transport implements transport.Transport for Slack Socket Mode.
type Transport struct {
	client    slackClient
	socket    socketClient
	appToken  string
	botToken  string
	mu        sync.Mutex
	connected bool
	closed    bool
	events    chan transport.StateEvent
	cancel    context.CancelFunc
}

// Opts holds parameters for creating a Slack Transport.
type Opts struct {
	AppToken string // xapp-... app-level token for Socket Mode
	BotToken string // xoxb-... bot token
	// For testing: inject mock clients instead of the real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Transport.
func New(opts Opts) (*Transport, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}

	t := &Transport{
		appToken: opts.AppToken,
		botToken: opts.BotToken,
		events:   make(chan transport.StateEvent, 16),
	}
	if opts.Client != nil {
		t.client = opts.Client
	}
	if opts.Socket != nil {
		t.socket = opts.Socket
	}
	return t, nil
}

// Connect verifies credentials and starts the Socket Mode event loop. The
// opened state event fires when the socket says hello.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("slack: transport already closed")
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}

	if t.client == nil {
		api := slackapi.New(t.botToken, slackapi.OptionAppLevelToken(t.appToken))
		t.client = api
		t.socket = &realSocketClient{client: socketmode.New(api)}
	}
	t.mu.Unlock()

	auth, err := t.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	log.Printf("slack: authenticated as %s", auth.User)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.connected = true
	t.mu.Unlock()

	go t.runSocket(runCtx)
	return nil
}

// runSocket pumps Socket Mode lifecycle events into state events. A socket
// loop exit surfaces as a transient close so the owner can reconnect.
func (t *Transport) runSocket(ctx context.Context) {
	runErr := make(chan error, 1)
	go func() { runErr <- t.socket.Run() }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-runErr:
			if err != nil {
				log.Printf("slack: socket loop exited: %v", err)
			}
			t.emit(transport.StateEvent{
				Kind:   transport.KindClosed,
				Reason: transport.ReasonNetworkError,
			})
			return
		case ev, ok := <-t.socket.EventsChan():
			if !ok {
				t.emit(transport.StateEvent{
					Kind:   transport.KindClosed,
					Reason: transport.ReasonNetworkError,
				})
				return
			}
			switch ev.Type {
			case socketmode.EventTypeHello:
				t.emit(transport.StateEvent{Kind: transport.KindOpened})
			case socketmode.EventTypeDisconnect:
				log.Printf("slack: socket disconnect notice")
			case socketmode.EventTypeInvalidAuth:
				t.emit(transport.StateEvent{
					Kind:   transport.KindClosed,
					Reason: transport.ReasonLoggedOut,
				})
				return
			}
		}
	}
}

// Events returns the state event channel.
func (t *Transport) Events() <-chan transport.StateEvent {
	return t.events
}

// emit delivers a state event unless the transport is closed.
func (t *Transport) emit(ev transport.StateEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		log.Printf("slack: event buffer full, dropping %v", ev.Kind)
	}
}

// SendGroupMessage posts text to a channel, honoring Slack's rate-limit
// retry hints.
func (t *Transport) SendGroupMessage(ctx context.Context, groupID, text string) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	t.mu.Unlock()

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := t.client.PostMessage(groupID, slackapi.MsgOptionText(text, false))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Groups lists the channels the bot can see, following pagination cursors.
func (t *Transport) Groups(ctx context.Context) ([]transport.GroupInfo, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	t.mu.Unlock()

	var out []transport.GroupInfo
	cursor := ""
	for {
		var (
			channels []slackapi.Channel
			next     string
		)
		err := retryOnRateLimit(ctx, func() error {
			var listErr error
			channels, next, listErr = t.client.GetConversations(&slackapi.GetConversationsParameters{
				Types:           []string{"public_channel", "private_channel"},
				ExcludeArchived: true,
				Limit:           conversationPageSize,
				Cursor:          cursor,
			})
			return listErr
		})
		if err != nil {
			return nil, fmt.Errorf("slack: list conversations: %w", err)
		}
		for _, ch := range channels {
			out = append(out, transport.GroupInfo{
				ID:               ch.ID,
				Name:             ch.Name,
				ParticipantCount: ch.NumMembers,
			})
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// GroupParticipants lists a channel's members with their profile names and
// phone numbers.
func (t *Transport) GroupParticipants(ctx context.Context, groupID string) ([]transport.Participant, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	t.mu.Unlock()

	var ids []string
	cursor := ""
	for {
		var (
			page []string
			next string
		)
		err := retryOnRateLimit(ctx, func() error {
			var listErr error
			page, next, listErr = t.client.GetUsersInConversation(&slackapi.GetUsersInConversationParameters{
				ChannelID: groupID,
				Limit:     conversationPageSize,
				Cursor:    cursor,
			})
			return listErr
		})
		if err != nil {
			return nil, fmt.Errorf("slack: list channel members: %w", err)
		}
		ids = append(ids, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	out := make([]transport.Participant, 0, len(ids))
	for _, id := range ids {
		p := transport.Participant{ID: id}
		user, err := t.client.GetUserInfo(id)
		if err != nil {
			// Roster stays useful even when a profile lookup fails.
			log.Printf("slack: user info for %s: %v", id, err)
		} else {
			p.Name = user.Profile.DisplayName
			if p.Name == "" {
				p.Name = user.RealName
			}
			p.Phone = user.Profile.Phone
		}
		out = append(out, p)
	}
	return out, nil
}

// Close stops the socket loop and closes the event stream.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	cancel := t.cancel
	close(t.events)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// retryOnRateLimit calls fn and retries after Slack's advertised wait on
// rate limit errors. It respects context cancellation.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rateErr *slackapi.RateLimitedError
		if !errors.As(err, &rateErr) || attempt == maxRetries {
			return err
		}

		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		log.Printf("slack: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
