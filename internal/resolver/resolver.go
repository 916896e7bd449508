// Package resolver runs the staff notification loop: it reports new pending
// requests to the staff chat and announces resolved outcomes to requesters,
// materializing subscriptions for approvals along the way.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"membot/core/logger"
	"membot/core/telegram/callbacks"
	"membot/core/telegram/format"
	"membot/core/telegram/keyboard"
	"membot/internal/domain"
	"membot/internal/flow"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques shared with the admin bot's handlers.
const (
	CallbackApproveRequest  = "req_approve"
	CallbackDeclineRequest  = "req_decline"
	CallbackApproveTraining = "trn_approve"
	CallbackDeclineTraining = "trn_decline"
)

// Store is the persistence slice the resolver drives.
type Store interface {
	PendingUnreported(ctx context.Context) ([]domain.SubscriptionRequest, error)
	MarkReported(ctx context.Context, id int64) error
	ResolvedUnannounced(ctx context.Context) ([]domain.SubscriptionRequest, error)
	MarkAnnouncedAndCompleted(ctx context.Context, id int64) error
	LinkSubscription(ctx context.Context, id, subscriptionID int64) error

	PendingUnreportedTrainings(ctx context.Context) ([]domain.TrainingRequest, error)
	MarkTrainingReported(ctx context.Context, id int64) error
	ResolvedUnannouncedTrainings(ctx context.Context) ([]domain.TrainingRequest, error)
	MarkTrainingAnnouncedAndCompleted(ctx context.Context, id int64) error

	UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
	CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	RenewSubscription(ctx context.Context, oldID int64, endDate time.Time, method domain.PaymentMethod, invoice, externalID string) (domain.Subscription, error)
	GroupByTelegramID(ctx context.Context, telegramID int64) (domain.Group, error)
	Subgroups(ctx context.Context, parentID int64) ([]domain.Group, error)
	EmployeeByID(ctx context.Context, id int64) (domain.Employee, error)
	TouchAddedToGroup(ctx context.Context, telegramID int64, at time.Time) error
}

// Messenger is the outbound Telegram slice the resolver needs.
type Messenger interface {
	SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error
	SendToChat(ctx context.Context, chatID int64, text string, markup ...*tele.ReplyMarkup) error
	CreateInvite(ctx context.Context, chatID int64, expiresAt time.Time) (string, error)
}

// Resolver owns the periodic request scan.
type Resolver struct {
	store       Store
	tg          Messenger
	staffChatID int64
	interval    time.Duration
	now         func() time.Time
}

// New builds a resolver reporting to the given staff chat.
func New(store Store, tg Messenger, staffChatID int64, interval time.Duration) *Resolver {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Resolver{
		store:       store,
		tg:          tg,
		staffChatID: staffChatID,
		interval:    interval,
		now:         time.Now,
	}
}

// Run scans until the context is cancelled. Scans are sequential, so two
// ticks never race over the same request.
func (r *Resolver) Run(ctx context.Context) {
	logger.Info(ctx, "resolver", "loop.start", slog.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "resolver", "loop.stop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Resolver) tick(ctx context.Context) {
	r.reportPending(ctx)
	r.announceResolved(ctx)
	r.reportPendingTrainings(ctx)
	r.announceResolvedTrainings(ctx)
}

// reportPending pushes new subscription requests to the staff chat. A failed
// item is left unreported and retried on the next tick.
func (r *Resolver) reportPending(ctx context.Context) {
	reqs, err := r.store.PendingUnreported(ctx)
	if err != nil {
		logger.Error(ctx, "resolver", "pending.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, req := range reqs {
		if err := r.reportRequest(ctx, req); err != nil {
			logger.Error(ctx, "resolver", "pending.report.fail",
				slog.Int64("request_id", req.ID),
				slog.String("err", err.Error()),
			)
			continue
		}
		if err := r.store.MarkReported(ctx, req.ID); err != nil {
			logger.Error(ctx, "resolver", "pending.mark.fail",
				slog.Int64("request_id", req.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (r *Resolver) reportRequest(ctx context.Context, req domain.SubscriptionRequest) error {
	kind := "New subscription request"
	if req.IsRenewal() {
		kind = "Renewal request"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s #%d*\n", kind, req.ID)
	fmt.Fprintf(&b, "User: @%s (%d)\n", format.EscapeMD(req.Username), req.UserTelegramID)
	fmt.Fprintf(&b, "Group: %s\n", format.EscapeMD(req.ChatName))
	fmt.Fprintf(&b, "Payment: %s\n", req.PaymentMethod)
	if req.InvoiceNumber != "" {
		fmt.Fprintf(&b, "Invoice: %s\n", format.EscapeMD(req.InvoiceNumber))
	}
	fmt.Fprintf(&b, "Account: %s", format.EscapeMD(req.ExternalAccountID))

	ref := callbacks.Ref{Kind: callbacks.KindRequest, ID: req.ID}
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: CallbackApproveRequest, Data: ref.Encode()},
		{Text: "❌ Decline", Unique: CallbackDeclineRequest, Data: ref.Encode()},
	})
	return r.tg.SendToChat(ctx, r.staffChatID, b.String(), markup)
}

// announceResolved notifies requesters of outcomes and, for approvals,
// realizes the subscription and issues invite links before completing.
func (r *Resolver) announceResolved(ctx context.Context) {
	reqs, err := r.store.ResolvedUnannounced(ctx)
	if err != nil {
		logger.Error(ctx, "resolver", "resolved.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, req := range reqs {
		if err := r.announceRequest(ctx, req); err != nil {
			logger.Error(ctx, "resolver", "resolved.announce.fail",
				slog.Int64("request_id", req.ID),
				slog.String("status", req.Status.String()),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (r *Resolver) announceRequest(ctx context.Context, req domain.SubscriptionRequest) error {
	switch req.Status {
	case domain.StatusApproved:
		if err := r.fulfill(ctx, req); err != nil {
			return err
		}
	case domain.StatusDeclined:
		reason := format.DerefString(req.RejectReason, "no reason given")
		text := fmt.Sprintf("Your subscription request for %s was declined.\nReason: %s",
			format.EscapeMD(req.ChatName), format.EscapeMD(reason))
		if err := r.tg.SendMessage(ctx, req.UserTelegramID, text); err != nil {
			return err
		}
	default:
		return fmt.Errorf("request %d: unexpected status %s", req.ID, req.Status)
	}
	return r.store.MarkAnnouncedAndCompleted(ctx, req.ID)
}

// fulfill creates or renews the subscription behind an approved request and
// sends the requester invite links for the group and its family subgroups.
func (r *Resolver) fulfill(ctx context.Context, req domain.SubscriptionRequest) error {
	if req.EndDate == nil {
		return fmt.Errorf("request %d: approved without end date", req.ID)
	}

	var (
		sub domain.Subscription
		err error
	)
	if req.IsRenewal() {
		sub, err = r.store.RenewSubscription(ctx, *req.SubscriptionID, *req.EndDate,
			req.PaymentMethod, req.InvoiceNumber, req.ExternalAccountID)
	} else {
		user, uerr := r.store.UserByTelegramID(ctx, req.UserTelegramID)
		if uerr != nil {
			return uerr
		}
		sub, err = r.store.CreateSubscription(ctx, domain.Subscription{
			UserID:            user.ID,
			ChatID:            req.ChatID,
			ChatName:          req.ChatName,
			EndDate:           *req.EndDate,
			PaymentMethod:     req.PaymentMethod,
			InvoiceNumber:     req.InvoiceNumber,
			ExternalAccountID: req.ExternalAccountID,
		})
	}
	if err != nil {
		return err
	}
	if err := r.store.LinkSubscription(ctx, req.ID, sub.ID); err != nil {
		return err
	}

	links, err := r.inviteLinks(ctx, req.ChatID, *req.EndDate)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your subscription to %s was approved until %s.",
		format.EscapeMD(req.ChatName), flow.FormatDate(*req.EndDate))
	if len(links) > 0 {
		b.WriteString("\n\nJoin here:")
		for _, link := range links {
			b.WriteString("\n")
			b.WriteString(link)
		}
	}
	if err := r.tg.SendMessage(ctx, req.UserTelegramID, b.String()); err != nil {
		return err
	}

	if err := r.store.TouchAddedToGroup(ctx, req.UserTelegramID, r.now()); err != nil {
		logger.Warn(ctx, "resolver", "touch.added.fail",
			slog.Int64("user_telegram_id", req.UserTelegramID),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "resolver", "request.fulfilled",
		slog.Int64("request_id", req.ID),
		slog.Int64("subscription_id", sub.ID),
		slog.Bool("renewal", req.IsRenewal()),
	)
	return nil
}

// inviteLinks issues one single-use link for the main group and each of its
// subgroups, all expiring with the subscription.
func (r *Resolver) inviteLinks(ctx context.Context, chatTelegramID int64, endDate time.Time) ([]string, error) {
	link, err := r.tg.CreateInvite(ctx, chatTelegramID, endDate)
	if err != nil {
		return nil, err
	}
	links := []string{link}

	group, err := r.store.GroupByTelegramID(ctx, chatTelegramID)
	if err != nil {
		// Unregistered chats simply have no family.
		return links, nil
	}
	subgroups, err := r.store.Subgroups(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	for _, sg := range subgroups {
		link, err := r.tg.CreateInvite(ctx, sg.TelegramID, endDate)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func (r *Resolver) reportPendingTrainings(ctx context.Context) {
	reqs, err := r.store.PendingUnreportedTrainings(ctx)
	if err != nil {
		logger.Error(ctx, "resolver", "training.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, req := range reqs {
		if err := r.reportTraining(ctx, req); err != nil {
			logger.Error(ctx, "resolver", "training.report.fail",
				slog.Int64("request_id", req.ID),
				slog.String("err", err.Error()),
			)
			continue
		}
		if err := r.store.MarkTrainingReported(ctx, req.ID); err != nil {
			logger.Error(ctx, "resolver", "training.mark.fail",
				slog.Int64("request_id", req.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (r *Resolver) reportTraining(ctx context.Context, req domain.TrainingRequest) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*New training request #%d*\n", req.ID)
	fmt.Fprintf(&b, "User: @%s (%d)\n", format.EscapeMD(req.Username), req.UserTelegramID)
	fmt.Fprintf(&b, "Session: %s at %s\n", flow.FormatDate(req.SessionDate), req.SessionTime)
	fmt.Fprintf(&b, "Payment: %s", req.PaymentMethod)
	if req.InvoiceNumber != "" {
		fmt.Fprintf(&b, "\nInvoice: %s", format.EscapeMD(req.InvoiceNumber))
	}

	ref := callbacks.Ref{Kind: callbacks.KindTraining, ID: req.ID}
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: CallbackApproveTraining, Data: ref.Encode()},
		{Text: "❌ Decline", Unique: CallbackDeclineTraining, Data: ref.Encode()},
	})
	return r.tg.SendToChat(ctx, r.staffChatID, b.String(), markup)
}

func (r *Resolver) announceResolvedTrainings(ctx context.Context) {
	reqs, err := r.store.ResolvedUnannouncedTrainings(ctx)
	if err != nil {
		logger.Error(ctx, "resolver", "training.resolved.scan.fail", slog.String("err", err.Error()))
		return
	}
	for _, req := range reqs {
		if err := r.announceTraining(ctx, req); err != nil {
			logger.Error(ctx, "resolver", "training.announce.fail",
				slog.Int64("request_id", req.ID),
				slog.String("status", req.Status.String()),
				slog.String("err", err.Error()),
			)
		}
	}
}

func (r *Resolver) announceTraining(ctx context.Context, req domain.TrainingRequest) error {
	switch req.Status {
	case domain.StatusApproved:
		text := fmt.Sprintf("Your training session on %s at %s was approved.",
			flow.FormatDate(req.SessionDate), req.SessionTime)
		if req.CoachID != nil {
			if coach, err := r.store.EmployeeByID(ctx, *req.CoachID); err == nil {
				text += fmt.Sprintf("\nYour coach: %s", format.EscapeMD(coach.FullName()))
			}
		}
		if err := r.tg.SendMessage(ctx, req.UserTelegramID, text); err != nil {
			return err
		}
	case domain.StatusDeclined:
		reason := format.DerefString(req.RejectReason, "no reason given")
		text := fmt.Sprintf("Your training request for %s at %s was declined.\nReason: %s",
			flow.FormatDate(req.SessionDate), req.SessionTime, format.EscapeMD(reason))
		if err := r.tg.SendMessage(ctx, req.UserTelegramID, text); err != nil {
			return err
		}
	default:
		return fmt.Errorf("training %d: unexpected status %s", req.ID, req.Status)
	}
	return r.store.MarkTrainingAnnouncedAndCompleted(ctx, req.ID)
}
