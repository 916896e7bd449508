package botapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"membot/core/logger"
	"membot/core/telegram/format"
)

// membershipReport renders the membership changes of the last 24 hours.
func (a *App) membershipReport(ctx context.Context, now time.Time) (string, error) {
	cutoff := now.Add(-24 * time.Hour)

	added, err := a.store.UsersAddedSince(ctx, cutoff)
	if err != nil {
		return "", err
	}
	removed, err := a.store.UsersRemovedSince(ctx, cutoff)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Membership report %s*\n", now.Format("02/01/2006"))
	fmt.Fprintf(&b, "Joined: %d\n", len(added))
	for _, u := range added {
		fmt.Fprintf(&b, "  + %s (@%s)\n", format.EscapeMD(u.FullName()), format.EscapeMD(u.Username))
	}
	fmt.Fprintf(&b, "Left: %d", len(removed))
	for _, u := range removed {
		fmt.Fprintf(&b, "\n  - %s (@%s)", format.EscapeMD(u.FullName()), format.EscapeMD(u.Username))
	}
	return b.String(), nil
}

// sendMembershipReport delivers the daily report to every configured owner.
func (a *App) sendMembershipReport(ctx context.Context) {
	if len(a.cfg.App.OwnerIDs) == 0 {
		return
	}
	text, err := a.membershipReport(ctx, time.Now())
	if err != nil {
		logger.Error(ctx, "botapp", "report.build.fail", slog.String("err", err.Error()))
		return
	}
	for _, owner := range a.cfg.App.OwnerIDs {
		if err := a.gw.SendMessage(ctx, owner, text); err != nil {
			logger.Warn(ctx, "botapp", "report.send.fail",
				slog.Int64("owner_id", owner),
				slog.String("err", err.Error()),
			)
		}
	}
}

// runDailyReport sends the membership report once a day at the sweep hour.
func (a *App) runDailyReport(ctx context.Context) {
	for {
		next := nextDaily(time.Now(), a.cfg.App.SweepHour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.sendMembershipReport(ctx)
		}
	}
}

func nextDaily(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
