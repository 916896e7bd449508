// Package sweeper enforces subscription lifetimes: it sends staged renewal
// reminders, deactivates expired subscriptions and removes users who no
// longer hold any active subscription from the managed groups.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membot/core/logger"
	"membot/core/telegram/format"
	"membot/internal/domain"
	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Store is the persistence slice the sweeper drives.
type Store interface {
	ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	ActiveSubscriptionsByUser(ctx context.Context, userID int64) ([]domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, id int64) error
	SetRenewalNotified(ctx context.Context, id int64, count int) error
	UserByID(ctx context.Context, id int64) (domain.User, error)
	AllUsers(ctx context.Context) ([]domain.User, error)
	GroupByTelegramID(ctx context.Context, telegramID int64) (domain.Group, error)
	MainGroups(ctx context.Context) ([]domain.Group, error)
	Subgroups(ctx context.Context, parentID int64) ([]domain.Group, error)
	GetSetting(ctx context.Context, key string) (string, error)
	TouchRemovedFromGroup(ctx context.Context, telegramID int64, at time.Time) error
}

// Gateway is the outbound Telegram slice the sweeper needs.
type Gateway interface {
	SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error
	RemoveMember(ctx context.Context, chatID, userID int64) error
}

// Sweeper owns the daily subscription sweep.
type Sweeper struct {
	store Store
	tg    Gateway
	hour  int
	now   func() time.Time
}

// New builds a sweeper that runs daily at the given hour (local time).
func New(st Store, tg Gateway, hour int) *Sweeper {
	if hour < 0 || hour > 23 {
		hour = 23
	}
	return &Sweeper{store: st, tg: tg, hour: hour, now: time.Now}
}

// Run sweeps once immediately, then daily at the configured hour, until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info(ctx, "sweeper", "loop.start", slog.Int("hour", s.hour))
	s.Sweep(ctx)

	for {
		next := s.nextRun()
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "sweeper", "loop.stop")
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) nextRun() time.Time {
	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Sweep runs one full pass. Failures on one subscription or user are logged
// and do not stop the rest of the pass, and a re-run over the same data is a
// no-op: reminders are guarded by a counter and removals by membership marks.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := s.now()
	s.sweepSubscriptions(ctx)
	s.sweepMemberships(ctx)
	logger.Info(ctx, "sweeper", "sweep.done", slog.Duration("took", logger.Took(start)))
}

func (s *Sweeper) sweepSubscriptions(ctx context.Context) {
	subs, err := s.store.ActiveSubscriptions(ctx)
	if err != nil {
		logger.Error(ctx, "sweeper", "subscriptions.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, sub := range subs {
		if err := s.sweepSubscription(ctx, sub); err != nil {
			logger.Error(ctx, "sweeper", "subscription.sweep.fail",
				slog.Int64("subscription_id", sub.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (s *Sweeper) sweepSubscription(ctx context.Context, sub domain.Subscription) error {
	now := s.now()
	if sub.Expired(now) {
		return s.expire(ctx, sub)
	}

	days := sub.DaysLeft(now)
	switch {
	case days <= 1 && sub.RenewalNotified < 2:
		if err := s.remind(ctx, sub, days); err != nil {
			return err
		}
		return s.store.SetRenewalNotified(ctx, sub.ID, 2)
	case days <= 7 && sub.RenewalNotified < 1:
		if err := s.remind(ctx, sub, days); err != nil {
			return err
		}
		return s.store.SetRenewalNotified(ctx, sub.ID, 1)
	}
	return nil
}

func (s *Sweeper) remind(ctx context.Context, sub domain.Subscription, days int) error {
	user, err := s.store.UserByID(ctx, sub.UserID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Your subscription to %s expires in %d day(s), on %s.",
		format.EscapeMD(sub.ChatName), days, sub.EndDate.Format("02/01/2006"))
	if link := s.storeLink(ctx); link != "" {
		text += "\nRenew here: " + link
	}

	if err := s.tg.SendMessage(ctx, user.TelegramID, text); err != nil {
		return err
	}
	logger.Info(ctx, "sweeper", "reminder.sent",
		slog.Int64("subscription_id", sub.ID),
		slog.Int("days_left", days),
	)
	return nil
}

func (s *Sweeper) expire(ctx context.Context, sub domain.Subscription) error {
	if err := s.store.DeactivateSubscription(ctx, sub.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	user, err := s.store.UserByID(ctx, sub.UserID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Your subscription to %s has expired.", format.EscapeMD(sub.ChatName))
	if link := s.storeLink(ctx); link != "" {
		text += "\nRenew here: " + link
	}
	if err := s.tg.SendMessage(ctx, user.TelegramID, text); err != nil {
		logger.Warn(ctx, "sweeper", "expiry.notify.fail",
			slog.Int64("user_id", user.ID),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "sweeper", "subscription.expired",
		slog.Int64("subscription_id", sub.ID),
		slog.Int64("user_id", sub.UserID),
	)
	return s.removeFromExpiredChat(ctx, user, sub.ChatID)
}

// removeFromExpiredChat kicks the user out of the chat behind an expired
// subscription and its family subgroups. A user left with no active
// subscriptions at all is skipped here: the membership sweep removes them
// from every managed group and records the removal mark.
func (s *Sweeper) removeFromExpiredChat(ctx context.Context, user domain.User, chatID int64) error {
	subs, err := s.store.ActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	for _, other := range subs {
		if other.ChatID == chatID {
			// A renewal already covers this chat again.
			return nil
		}
	}

	if err := s.tg.RemoveMember(ctx, chatID, user.TelegramID); err != nil {
		return err
	}

	group, err := s.store.GroupByTelegramID(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	subgroups, err := s.store.Subgroups(ctx, group.ID)
	if err != nil {
		return err
	}
	for _, sg := range subgroups {
		if err := s.tg.RemoveMember(ctx, sg.TelegramID, user.TelegramID); err != nil {
			return err
		}
	}
	return nil
}

// sweepMemberships removes users who hold no active subscription from every
// managed group. A user is only touched while the membership marks say they
// are still inside, so repeated sweeps do not re-remove anyone.
func (s *Sweeper) sweepMemberships(ctx context.Context) {
	users, err := s.store.AllUsers(ctx)
	if err != nil {
		logger.Error(ctx, "sweeper", "users.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, user := range users {
		if !inGroups(user) {
			continue
		}
		if err := s.sweepUser(ctx, user); err != nil {
			logger.Error(ctx, "sweeper", "user.sweep.fail",
				slog.Int64("user_id", user.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// inGroups reports whether the membership marks say the user currently has
// group access.
func inGroups(u domain.User) bool {
	if u.LastAddedToGroup == nil {
		return false
	}
	return u.LastRemovedFromGrp == nil || u.LastRemovedFromGrp.Before(*u.LastAddedToGroup)
}

func (s *Sweeper) sweepUser(ctx context.Context, user domain.User) error {
	subs, err := s.store.ActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return nil
	}

	groups, err := s.store.MainGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := s.tg.RemoveMember(ctx, g.TelegramID, user.TelegramID); err != nil {
			return err
		}
		subgroups, err := s.store.Subgroups(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, sg := range subgroups {
			if err := s.tg.RemoveMember(ctx, sg.TelegramID, user.TelegramID); err != nil {
				return err
			}
		}
	}

	if err := s.store.TouchRemovedFromGroup(ctx, user.TelegramID, s.now()); err != nil {
		return err
	}
	logger.Info(ctx, "sweeper", "user.removed",
		slog.Int64("user_id", user.ID),
		slog.Int64("telegram_id", user.TelegramID),
	)
	return nil
}

func (s *Sweeper) storeLink(ctx context.Context) string {
	link, err := s.store.GetSetting(ctx, domain.SettingSallaLink)
	if err != nil {
		return ""
	}
	return link
}
