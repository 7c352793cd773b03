// Package relay accepts inbound repository events, filters them against the
// owning repository's allow-lists, renders the message template, and fans the
// rendered message out to the tenant's chat groups.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/zulandar/waypost/internal/models"
	"github.com/zulandar/waypost/internal/notify"
	"github.com/zulandar/waypost/internal/session"
)

// ErrUnknownToken is returned when no active repository matches the token.
var ErrUnknownToken = errors.New("relay: unknown or inactive token")

// Normalized is a transport-agnostic repository event.
type Normalized struct {
	Event  string `json:"event"`
	Repo   string `json:"repo"`
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// Outcome reports what one delivery did.
type Outcome struct {
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
	SentTo  int    `json:"sentTo"`
	Failed  int    `json:"failed"`
	// NotReady marks a delivery refused because the tenant's session is not
	// connected yet; nothing was sent or recorded.
	NotReady bool `json:"-"`
}

// Success reports whether at least one group received the message. Partial
// delivery counts as success.
func (o Outcome) Success() bool {
	return !o.Ignored && o.SentTo > 0
}

// Intake resolves tokens to repositories and drives the fan-out.
type Intake struct {
	db       *gorm.DB
	sessions *session.Registry
	notify   *notify.Relay
}

// IntakeOpts configures an Intake.
type IntakeOpts struct {
	DB       *gorm.DB
	Sessions *session.Registry
	Notify   *notify.Relay
}

// NewIntake creates an Intake, validating required fields.
func NewIntake(opts IntakeOpts) (*Intake, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: DB is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("relay: Sessions is required")
	}
	if opts.Notify == nil {
		return nil, fmt.Errorf("relay: Notify is required")
	}
	return &Intake{db: opts.DB, sessions: opts.Sessions, notify: opts.Notify}, nil
}

// Handle processes one inbound event: token lookup, allow-list filtering,
// template rendering, group fan-out, audit row, in-app notification. Every
// target group is attempted even when earlier sends fail.
func (i *Intake) Handle(ctx context.Context, token string, ev Normalized) (Outcome, error) {
	var repo models.Repository
	err := i.db.WithContext(ctx).
		Where("api_token = ? AND is_active = ?", token, true).
		First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Outcome{}, ErrUnknownToken
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("relay: resolve token: %w", err)
	}

	if !allowed(repo.AllowedEvents, ev.Event) {
		return Outcome{Ignored: true, Reason: "event ignored by allowlist"}, nil
	}
	if ev.Author != "" && !allowed(repo.AllowedAuthors, ev.Author) {
		return Outcome{Ignored: true, Reason: "author ignored by allowlist"}, nil
	}

	groupIDs, err := i.targetGroups(ctx, repo)
	if err != nil {
		return Outcome{}, err
	}
	if len(groupIDs) == 0 {
		return Outcome{Reason: "no target groups configured"}, nil
	}

	tmpl, err := i.resolveTemplate(ctx, repo, ev.Event)
	if err != nil {
		return Outcome{}, err
	}
	text := Render(tmpl, ev)

	s := i.sessions.GetOrCreate(repo.TenantID)
	if _, ready := s.Status(); !ready {
		// Refuse before sending rather than burning one failure per group.
		return Outcome{NotReady: true, Reason: "session not ready"}, nil
	}
	out := i.fanOut(ctx, s, groupIDs, text)

	we := models.WebhookEvent{
		TenantID:     repo.TenantID,
		RepoName:     repo.RepoName,
		EventType:    ev.Event,
		Title:        ev.Title,
		Author:       ev.Author,
		GroupsSent:   out.SentTo,
		GroupsFailed: out.Failed,
	}
	if err := i.db.WithContext(ctx).Create(&we).Error; err != nil {
		log.Printf("relay: record webhook event for %s: %v", repo.RepoName, err)
	}

	// The in-app notification is best-effort: delivery already happened.
	_, err = i.notify.Create(ctx, repo.TenantID, notify.Input{
		Type:    "github:" + ev.Event,
		Title:   fmt.Sprintf("%s: %s", ev.Repo, ev.Title),
		Message: fmt.Sprintf("%s by %s", ev.Event, ev.Author),
		Link:    ev.URL,
		Metadata: map[string]any{
			"repo":   ev.Repo,
			"event":  ev.Event,
			"sentTo": out.SentTo,
			"failed": out.Failed,
		},
	})
	if err != nil {
		log.Printf("relay: notification for %s: %v", repo.RepoName, err)
	}

	return out, nil
}

// targetGroups returns the repository's explicit groups, falling back to all
// of the tenant's active groups when none are configured.
func (i *Intake) targetGroups(ctx context.Context, repo models.Repository) ([]string, error) {
	if ids := parseList(repo.GroupIDs); len(ids) > 0 {
		return ids, nil
	}
	var groups []models.Group
	err := i.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", repo.TenantID, true).
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("relay: load groups: %w", err)
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.GroupID)
	}
	return ids, nil
}

// resolveTemplate picks the repository's own template, else the tenant's
// active global template for the event type, else the built-in default.
func (i *Intake) resolveTemplate(ctx context.Context, repo models.Repository, event string) (string, error) {
	if repo.MessageTemplate != "" {
		return repo.MessageTemplate, nil
	}
	var mt models.MessageTemplate
	err := i.db.WithContext(ctx).
		Where("tenant_id = ? AND event_type = ? AND is_active = ?", repo.TenantID, event, true).
		First(&mt).Error
	if err == nil {
		return mt.TemplateText, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultTemplate, nil
	}
	return "", fmt.Errorf("relay: load template: %w", err)
}

// fanOut delivers text to every group concurrently; all groups are attempted
// regardless of individual failures.
func (i *Intake) fanOut(ctx context.Context, s *session.Session, groupIDs []string, text string) Outcome {
	var (
		mu  sync.Mutex
		out Outcome
		wg  sync.WaitGroup
	)
	for _, gid := range groupIDs {
		wg.Add(1)
		go func(gid string) {
			defer wg.Done()
			err := s.SendToGroup(ctx, gid, text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("relay: send to group %s for tenant %s: %v", gid, s.TenantID(), err)
				out.Failed++
				return
			}
			out.SentTo++
		}(gid)
	}
	wg.Wait()
	return out
}

// allowed reports whether value passes a JSON-array allow-list. An empty or
// unparsable list allows everything.
func allowed(listJSON, value string) bool {
	list := parseList(listJSON)
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// parseList decodes a JSON string array column, tolerating empty and
// malformed values.
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
