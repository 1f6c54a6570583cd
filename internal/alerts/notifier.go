package alerts

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"slices"
	"strings"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/config"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"go.uber.org/zap"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier records low-stock events and mails a daily digest of them.
type Notifier struct {
	events   EventLog
	cfg      config.AlertsConfig
	log      *zap.Logger
	sendMail sendFunc
	now      func() time.Time
}

var _ ledger.StockAlerter = (*Notifier)(nil)

func NewNotifier(events EventLog, cfg config.AlertsConfig, log *zap.Logger) *Notifier {
	return &Notifier{
		events:   events,
		cfg:      cfg,
		log:      log.Named("alerts"),
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (n *Notifier) LowStock(ctx context.Context, item models.Item, m models.Movement) {
	e := Event{
		ItemCode:     item.Code,
		ItemName:     item.Name,
		Quantity:     item.Quantity,
		MinThreshold: item.MinThreshold,
		MovementID:   m.ID,
		Actor:        m.Actor,
		Time:         n.now().UTC(),
	}
	if err := n.events.Push(ctx, dayKey(e.Time), e); err != nil {
		n.log.Warn("failed to record low stock event", zap.String("code", item.Code), zap.Error(err))
	}
}

func (n *Notifier) Events(ctx context.Context, day time.Time) ([]Event, error) {
	return n.events.Events(ctx, dayKey(day))
}

// ItemSummary aggregates one item's events of a day.
type ItemSummary struct {
	ItemCode     string
	ItemName     string
	Alerts       int
	LastQuantity string
	MinThreshold string
}

func summarize(events []Event) []ItemSummary {
	byCode := make(map[string]*ItemSummary)
	for _, e := range events {
		s, ok := byCode[e.ItemCode]
		if !ok {
			s = &ItemSummary{ItemCode: e.ItemCode, ItemName: e.ItemName}
			byCode[e.ItemCode] = s
		}
		s.Alerts++
		s.LastQuantity = e.Quantity.String()
		s.MinThreshold = e.MinThreshold.String()
	}

	out := make([]ItemSummary, 0, len(byCode))
	for _, s := range byCode {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b ItemSummary) int { return strings.Compare(a.ItemCode, b.ItemCode) })
	return out
}

func composeSummary(day string, events []Event) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<h2>Low stock summary for %s</h2>", day))
	sb.WriteString(fmt.Sprintf("<p>Alerts: <strong>%d</strong></p>", len(events)))

	sb.WriteString("<h3>By item</h3><ul>")
	for _, s := range summarize(events) {
		sb.WriteString(fmt.Sprintf("<li><code>%s</code> %s: %d alerts, last quantity %s (minimum %s)</li>",
			html.EscapeString(s.ItemCode), html.EscapeString(s.ItemName), s.Alerts, s.LastQuantity, s.MinThreshold))
	}
	sb.WriteString("</ul>")

	sb.WriteString("<h3>Full log</h3><ul>")
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("<li><b>%s</b> by %s at %s: %s left</li>",
			html.EscapeString(e.ItemCode), html.EscapeString(e.Actor), e.Time.Format(time.RFC822), e.Quantity))
	}
	sb.WriteString("</ul>")
	return sb.String()
}

// SendDailySummary mails the digest of day. Without an SMTP server the
// digest is logged instead. Days without events send nothing.
func (n *Notifier) SendDailySummary(ctx context.Context, day time.Time) error {
	key := dayKey(day)
	events, err := n.events.Events(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read low stock events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	if n.cfg.SMTPServer == "" || n.cfg.To == "" {
		for _, s := range summarize(events) {
			n.log.Info("low stock summary",
				zap.String("day", key),
				zap.String("code", s.ItemCode),
				zap.Int("alerts", s.Alerts),
				zap.String("last_quantity", s.LastQuantity))
		}
		return nil
	}

	msg := strings.Join([]string{
		"From: " + n.cfg.From,
		"To: " + n.cfg.To,
		"Subject: Low stock summary " + key,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		composeSummary(key, events),
	}, "\r\n")

	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPServer)
	}

	addr := fmt.Sprintf("%s:%s", n.cfg.SMTPServer, n.cfg.SMTPPort)
	if err := n.sendMail(addr, auth, n.cfg.From, strings.Split(n.cfg.To, ","), []byte(msg)); err != nil {
		return fmt.Errorf("failed to send low stock summary: %w", err)
	}
	n.log.Info("low stock summary sent", zap.String("day", key), zap.Int("alerts", len(events)))
	return nil
}

// summaryDelay leaves room for events committed in the last moments of the
// day to reach the log.
const summaryDelay = time.Minute

// nextSummaryAt is the first run after now: shortly past the next UTC
// midnight.
func nextSummaryAt(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.Add(summaryDelay)
	if !next.After(now) {
		next = midnight.AddDate(0, 0, 1).Add(summaryDelay)
	}
	return next
}

// StartDailySummary sends the digest of the previous UTC day shortly after
// midnight and then every interval until ctx ends.
func (n *Notifier) StartDailySummary(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	now := n.now()
	timer := time.NewTimer(nextSummaryAt(now).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			yesterday := n.now().UTC().AddDate(0, 0, -1)
			if err := n.SendDailySummary(ctx, yesterday); err != nil {
				n.log.Error("daily low stock summary failed", zap.Error(err))
			}
			timer.Reset(interval)
		}
	}
}
