// Package broadcast delivers scheduled offer messages to every known user.
// Each message is sent a fixed number of times per rolling period, spread
// evenly over the period; an hourly tick matches the current hour against the
// schedule.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"membot/core/logger"
	"membot/internal/domain"

	tele "gopkg.in/telebot.v4"
)

// SettingsStore is the persistence slice PeriodStart needs.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the persistence slice the broadcaster drives.
type Store interface {
	SettingsStore
	OfferMessages(ctx context.Context) ([]domain.OfferMessage, error)
	AllUsers(ctx context.Context) ([]domain.User, error)
}

// Gateway is the outbound Telegram slice the broadcaster needs.
type Gateway interface {
	SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error
}

// Broadcaster owns the hourly offer-message tick.
type Broadcaster struct {
	store Store
	tg    Gateway
	now   func() time.Time
}

// New builds a broadcaster over the given store and gateway.
func New(st Store, tg Gateway) *Broadcaster {
	return &Broadcaster{store: st, tg: tg, now: time.Now}
}

// Run broadcasts at every full hour until the context is cancelled. The first
// tick waits for the next full hour so restarts never double-send within one
// hour slot.
func (b *Broadcaster) Run(ctx context.Context) {
	logger.Info(ctx, "broadcast", "loop.start")
	for {
		next := b.nextRun()
		timer := time.NewTimer(next.Sub(b.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "broadcast", "loop.stop")
			return
		case <-timer.C:
			b.Broadcast(ctx)
		}
	}
}

func (b *Broadcaster) nextRun() time.Time {
	now := b.now()
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).
		Add(time.Hour)
}

// Broadcast sends every offer message due in the current hour to all known
// users. Per-user send failures are logged and skipped so one blocked chat
// never stalls the rest.
func (b *Broadcaster) Broadcast(ctx context.Context) {
	start, err := PeriodStart(ctx, b.store, b.now())
	if err != nil {
		logger.Error(ctx, "broadcast", "period.fail", slog.String("err", err.Error()))
		return
	}
	offers, err := b.store.OfferMessages(ctx)
	if err != nil {
		logger.Error(ctx, "broadcast", "offers.scan.fail", slog.String("err", err.Error()))
		return
	}

	now := b.now()
	for _, offer := range offers {
		if !offer.DueAt(start, now) {
			continue
		}
		if err := b.send(ctx, offer); err != nil {
			logger.Error(ctx, "broadcast", "offer.send.fail",
				slog.Int64("offer_id", offer.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, offer domain.OfferMessage) error {
	users, err := b.store.AllUsers(ctx)
	if err != nil {
		return err
	}
	sent := 0
	for _, u := range users {
		if err := b.tg.SendMessage(ctx, u.TelegramID, offer.Content); err != nil {
			logger.Warn(ctx, "broadcast", "user.send.fail",
				slog.Int64("offer_id", offer.ID),
				slog.Int64("telegram_id", u.TelegramID),
				slog.String("err", err.Error()),
			)
			continue
		}
		sent++
	}
	logger.Info(ctx, "broadcast", "offer.sent",
		slog.Int64("offer_id", offer.ID),
		slog.Int("recipients", sent),
	)
	return nil
}

// PeriodStart returns the start of the current offer period, anchored to a
// Monday midnight and rolled forward whole periods as time passes. The value
// is persisted so the schedule stays stable across restarts.
func PeriodStart(ctx context.Context, st SettingsStore, now time.Time) (time.Time, error) {
	start, err := storedStart(ctx, st)
	if err != nil {
		start = startOfWeek(now)
	}

	rolled := false
	for !now.Before(start.Add(domain.OfferPeriod)) {
		start = start.Add(domain.OfferPeriod)
		rolled = true
	}
	if err != nil || rolled {
		if serr := st.SetSetting(ctx, domain.SettingOfferPeriodStart, start.Format(time.RFC3339)); serr != nil {
			return time.Time{}, serr
		}
	}
	return start, nil
}

func storedStart(ctx context.Context, st SettingsStore) (time.Time, error) {
	raw, err := st.GetSetting(ctx, domain.SettingOfferPeriodStart)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// startOfWeek returns the Monday midnight at or before t.
func startOfWeek(t time.Time) time.Time {
	back := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -back).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
