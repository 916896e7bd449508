package botapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"membot/core/logger"
	"membot/core/telegram/callbacks"
	"membot/core/telegram/format"
	"membot/core/telegram/helpers"
	"membot/core/telegram/keyboard"
	"membot/internal/domain"
	"membot/internal/flow"
	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques shared between prompt rendering and handler registration.
const (
	cbGroup        = "grp_pick"
	cbSubscription = "sub_pick"
	cbPayment      = "pay_pick"
	cbDate         = "date_pick"
	cbSlot         = "slot_pick"
	cbRating       = "rate_pick"
	cbRole         = "role_pick"
	cbSupportReply = "usr_reply"
)

var paymentLabels = map[domain.PaymentMethod]string{
	domain.PaySalla: "Salla store",
	domain.PaySTC:   "STC Pay",
	domain.PayTrial: "Free trial",
	domain.PayOther: "Other",
}

// errEffectsHalted signals that a terminal informational message was already
// sent and the remaining effects must be discarded.
var errEffectsHalted = errors.New("botapp: effects halted")

// apply interprets the machine's effects: prompts are rendered back into the
// current chat, commits go to the store, notifications go out through the
// gateway. A halted effect stops the rest cleanly, so a lost resolution race
// never follows its notice with a stale "Approved." or "Declined.".
func (a *App) apply(ctx context.Context, c tele.Context, effects []flow.Effect) error {
	for _, e := range effects {
		if err := a.applyOne(ctx, c, e); err != nil {
			if errors.Is(err, errEffectsHalted) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (a *App) applyOne(ctx context.Context, c tele.Context, e flow.Effect) error {
	switch eff := e.(type) {
	case flow.PromptText:
		return helpers.SendMD(c, eff.Text)

	case flow.PromptGroups:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Groups))
		for _, g := range eff.Groups {
			ref := callbacks.Ref{Kind: callbacks.KindGroup, ID: g.ID}
			btns = append(btns, keyboard.InlineBtn{Text: g.Title, Unique: cbGroup, Data: ref.Encode()})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtons(btns))

	case flow.PromptSubscriptions:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Subscriptions))
		for _, sub := range eff.Subscriptions {
			ref := callbacks.Ref{Kind: callbacks.KindSubscription, ID: sub.ID}
			label := fmt.Sprintf("%s until %s", sub.ChatName, flow.FormatDate(sub.EndDate))
			btns = append(btns, keyboard.InlineBtn{Text: label, Unique: cbSubscription, Data: ref.Encode()})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtons(btns))

	case flow.PromptPaymentMethods:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Methods))
		for _, m := range eff.Methods {
			btns = append(btns, keyboard.InlineBtn{Text: paymentLabels[m], Unique: cbPayment, Data: string(m)})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtonsNPerRow(btns, 2))

	case flow.PromptDates:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Dates))
		for _, d := range eff.Dates {
			label := flow.FormatDate(d)
			btns = append(btns, keyboard.InlineBtn{Text: label, Unique: cbDate, Data: label})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtonsNPerRow(btns, 2))

	case flow.PromptTimes:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Times))
		for _, t := range eff.Times {
			btns = append(btns, keyboard.InlineBtn{Text: t, Unique: cbSlot, Data: t})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtonsNPerRow(btns, 2))

	case flow.PromptRating:
		btns := make([]keyboard.InlineBtn, 0, 5)
		for i := 1; i <= 5; i++ {
			v := fmt.Sprintf("%d", i)
			btns = append(btns, keyboard.InlineBtn{Text: v, Unique: cbRating, Data: v})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtonsNPerRow(btns, 5))

	case flow.PromptRoles:
		btns := make([]keyboard.InlineBtn, 0, len(eff.Roles))
		for _, r := range eff.Roles {
			btns = append(btns, keyboard.InlineBtn{Text: string(r), Unique: cbRole, Data: string(r)})
		}
		return helpers.SendMD(c, eff.Text, keyboard.InlineButtonsNPerRow(btns, 3))

	case flow.CreateSubscriptionRequest:
		req, err := a.store.CreateSubscriptionRequest(ctx, eff.Request)
		if err != nil {
			return err
		}
		logger.Info(ctx, "botapp", "request.created",
			slog.Int64("request_id", req.ID),
			slog.Bool("renewal", req.IsRenewal()),
		)
		return nil

	case flow.CreateTrainingRequest:
		req, err := a.store.CreateTrainingRequest(ctx, eff.Request)
		if err != nil {
			return err
		}
		logger.Info(ctx, "botapp", "training.created", slog.Int64("request_id", req.ID))
		return nil

	case flow.ApproveRequest:
		return a.approve(ctx, c, eff)

	case flow.DeclineRequest:
		return a.decline(ctx, c, eff)

	case flow.RenewSubscription:
		sub, err := a.store.RenewSubscription(ctx, eff.OldID, eff.EndDate, eff.PaymentMethod, eff.InvoiceNumber, "")
		if err != nil {
			return err
		}
		if user, err := a.store.UserByID(ctx, sub.UserID); err == nil {
			text := fmt.Sprintf("Your subscription to %s was renewed until %s.",
				format.EscapeMD(sub.ChatName), flow.FormatDate(sub.EndDate))
			if err := a.gw.SendMessage(ctx, user.TelegramID, text); err != nil {
				logger.Warn(ctx, "botapp", "renew.notify.fail", slog.String("err", err.Error()))
			}
		}
		return nil

	case flow.NotifyStaff:
		text := fmt.Sprintf("Message from @%s (%d):\n%s",
			format.EscapeMD(eff.FromUsername), eff.FromTelegramID, format.EscapeMD(eff.Text))
		ref := callbacks.Ref{Kind: callbacks.KindUser, ID: eff.FromTelegramID}
		markup := keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "Reply", Unique: cbSupportReply, Data: ref.Encode()},
		})
		return a.gw.SendToChat(ctx, a.cfg.App.SupportChatID, text, markup)

	case flow.SendDirect:
		return a.gw.SendMessage(ctx, eff.TelegramID, eff.Text)

	case flow.UpsertEmployee:
		_, err := a.store.UpsertEmployee(ctx, eff.Employee)
		return err

	case flow.AssignGroupParent:
		if err := a.store.AssignParent(ctx, eff.GroupID, eff.ParentID); err != nil {
			if errors.Is(err, store.ErrFamilyConflict) {
				return helpers.SendMD(c, "Those groups cannot form a family: "+err.Error())
			}
			return err
		}
		return nil

	case flow.SaveSetting:
		return a.store.SetSetting(ctx, eff.Key, eff.Value)

	case flow.CreateOfferMessage:
		msg, err := a.store.CreateOfferMessage(ctx, eff.Content, eff.PerPeriod)
		if err != nil {
			return err
		}
		logger.Info(ctx, "botapp", "offer.created",
			slog.Int64("offer_id", msg.ID),
			slog.Int("per_period", msg.PerPeriod),
		)
		return nil
	}

	return fmt.Errorf("botapp: unhandled effect %T", e)
}

// approve resolves a request. Losing the race to another staff member is
// reported back instead of erroring.
func (a *App) approve(ctx context.Context, c tele.Context, eff flow.ApproveRequest) error {
	var err error
	if eff.Training {
		coachID, cerr := a.pickCoach(ctx, eff.ID)
		if cerr != nil {
			return cerr
		}
		err = a.store.MarkTrainingApproved(ctx, eff.ID, coachID)
	} else {
		err = a.store.MarkApproved(ctx, eff.ID, eff.EndDate)
	}
	return a.reportResolution(ctx, c, eff.ID, err)
}

func (a *App) decline(ctx context.Context, c tele.Context, eff flow.DeclineRequest) error {
	var err error
	if eff.Training {
		err = a.store.MarkTrainingDeclined(ctx, eff.ID, eff.Reason)
	} else {
		err = a.store.MarkDeclined(ctx, eff.ID, eff.Reason)
	}
	return a.reportResolution(ctx, c, eff.ID, err)
}

func (a *App) reportResolution(ctx context.Context, c tele.Context, id int64, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAlreadyResolved):
		if serr := helpers.SendMD(c, "This request was already resolved by someone else."); serr != nil {
			return serr
		}
		return errEffectsHalted
	case errors.Is(err, store.ErrNotFound):
		if serr := helpers.SendMD(c, "This request no longer exists."); serr != nil {
			return serr
		}
		return errEffectsHalted
	default:
		logger.Error(ctx, "botapp", "resolve.fail",
			slog.Int64("request_id", id),
			slog.String("err", err.Error()),
		)
		return err
	}
}

// pickCoach rotates coach assignments over the registered tutors.
func (a *App) pickCoach(ctx context.Context, requestID int64) (*int64, error) {
	tutors, err := a.store.Tutors(ctx)
	if err != nil {
		return nil, err
	}
	if len(tutors) == 0 {
		return nil, nil
	}
	coach := tutors[int(requestID)%len(tutors)]
	return &coach.ID, nil
}
