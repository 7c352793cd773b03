package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/zulandar/waypost/internal/models"
	"github.com/zulandar/waypost/internal/notify"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// timerChan returns the timer's channel, or nil (blocks forever in select)
// when the timer was never armed.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Digest sends each tenant a daily summary of relayed deliveries as an
// in-app notification.
type Digest struct {
	db     *gorm.DB
	notify *notify.Relay
	expr   string
}

// DigestOpts configures a Digest.
type DigestOpts struct {
	DB     *gorm.DB
	Notify *notify.Relay
	Cron   string // 5-field cron expression
}

// NewDigest creates a Digest, validating required fields.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: DB is required")
	}
	if opts.Notify == nil {
		return nil, fmt.Errorf("relay: Notify is required")
	}
	if opts.Cron == "" {
		return nil, fmt.Errorf("relay: Cron is required")
	}
	if _, err := cronParser.Parse(opts.Cron); err != nil {
		return nil, fmt.Errorf("relay: invalid cron expression %q: %w", opts.Cron, err)
	}
	return &Digest{db: opts.DB, notify: opts.Notify, expr: opts.Cron}, nil
}

// Run fires the digest on the configured schedule until ctx is canceled.
func (d *Digest) Run(ctx context.Context) {
	var timer *time.Timer
	if dur := nextCronDuration(d.expr); dur > 0 {
		timer = time.NewTimer(dur)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerChan(timer):
			d.Fire(ctx)
			if dur := nextCronDuration(d.expr); dur > 0 {
				timer.Reset(dur)
			}
		}
	}
}

// tenantDigest is one tenant's aggregated delivery counts.
type tenantDigest struct {
	TenantID string
	Events   int
	Sent     int
	Failed   int
}

// Fire builds and sends one digest covering the trailing 24 hours. Tenants
// with no activity get no notification.
func (d *Digest) Fire(ctx context.Context) {
	since := time.Now().Add(-24 * time.Hour)

	var rows []tenantDigest
	err := d.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Select("tenant_id, COUNT(*) AS events, SUM(groups_sent) AS sent, SUM(groups_failed) AS failed").
		Where("created_at >= ?", since).
		Group("tenant_id").
		Scan(&rows).Error
	if err != nil {
		log.Printf("relay: digest query: %v", err)
		return
	}

	for _, row := range rows {
		if row.Events == 0 {
			continue
		}
		_, err := d.notify.Create(ctx, row.TenantID, notify.Input{
			Type:  "digest:daily",
			Title: "Daily delivery digest",
			Message: fmt.Sprintf("%d event(s) relayed in the last 24h: %d group deliveries, %d failures.",
				row.Events, row.Sent, row.Failed),
			Metadata: map[string]any{
				"events": row.Events,
				"sent":   row.Sent,
				"failed": row.Failed,
			},
		})
		if err != nil {
			log.Printf("relay: digest notification for tenant %s: %v", row.TenantID, err)
		}
	}
}
