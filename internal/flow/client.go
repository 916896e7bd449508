package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"membot/internal/domain"
	"membot/internal/session"
	"membot/internal/store"
)

// StartSubscribe begins the new-subscription flow. With freeTrial the
// payment method is preset and the invoice steps are skipped.
func (m *Machine) StartSubscribe(ctx context.Context, user domain.User, s *session.Session, freeTrial bool) ([]Effect, error) {
	groups, err := m.store.MainGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("start subscribe: %w", err)
	}
	if len(groups) == 0 {
		s.Reset()
		return prompt("No groups are open for subscription right now."), nil
	}
	s.Reset()
	s.FreeTrial = freeTrial
	s.Step = session.StepSelectGroup
	return []Effect{PromptGroups{Text: "Choose a group to join:", Groups: groups}}, nil
}

// StartRenew begins the renewal flow over the user's active subscriptions.
func (m *Machine) StartRenew(ctx context.Context, user domain.User, s *session.Session) ([]Effect, error) {
	subs, err := m.store.ActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("start renew: %w", err)
	}
	if len(subs) == 0 {
		s.Reset()
		return prompt("You have no active subscriptions to renew."), nil
	}
	s.Reset()
	s.Step = session.StepRenewSelectSubscription
	return []Effect{PromptSubscriptions{Text: "Which subscription would you like to renew?", Subscriptions: subs}}, nil
}

// StartTraining begins the training booking flow.
func (m *Machine) StartTraining(ctx context.Context, user domain.User, s *session.Session) ([]Effect, error) {
	s.Reset()
	s.Step = session.StepTrainingSelectDate
	return []Effect{PromptDates{Text: "Pick a date for your session:", Dates: bookableDates(m.now(), 7)}}, nil
}

// StartSupport begins a support conversation.
func (m *Machine) StartSupport(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepSupportMessage
	return prompt("Type your message and our team will get back to you.")
}

func (m *Machine) onSelectGroup(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	if in.Kind != InputButton {
		return prompt("Please pick a group using the buttons."), nil
	}
	group, err := m.store.GroupByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prompt("Please pick a group using the buttons."), nil
		}
		return nil, err
	}

	// An existing active subscription short-circuits the flow.
	sub, err := m.store.ActiveSubscription(ctx, user.ID, group.TelegramID)
	switch {
	case err == nil:
		s.Reset()
		return prompt(fmt.Sprintf("You are already subscribed to %s; it expires on %s.",
			group.Title, FormatDate(sub.EndDate))), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	s.ChatID = group.TelegramID
	s.ChatName = group.Title

	if s.FreeTrial {
		s.PaymentMethod = string(domain.PayTrial)
		s.Step = session.StepExternalAccountID
		return prompt("Enter your TradingView account ID:"), nil
	}

	s.Step = session.StepPaymentMethod
	return []Effect{PromptPaymentMethods{
		Text:    "How did you pay?",
		Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayOther},
	}}, nil
}

func (m *Machine) onPaymentMethod(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	method, err := domain.ParsePaymentMethod(in.Text)
	if err != nil || method == domain.PayTrial {
		return []Effect{PromptPaymentMethods{
			Text:    "Please choose a payment method using the buttons.",
			Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayOther},
		}}, nil
	}
	s.PaymentMethod = string(method)
	s.Step = session.StepInvoiceNumber
	return prompt("Enter your invoice number:"), nil
}

func (m *Machine) onInvoiceNumber(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	invoice := strings.TrimSpace(in.Text)
	if in.Kind != InputText || invoice == "" {
		return prompt("Enter your invoice number:"), nil
	}
	s.InvoiceNumber = invoice
	s.Step = session.StepExternalAccountID
	return prompt("Enter your TradingView account ID:"), nil
}

func (m *Machine) onExternalAccountID(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	externalID := strings.TrimSpace(in.Text)
	if in.Kind != InputText || externalID == "" {
		return prompt("Enter your TradingView account ID:"), nil
	}

	req := domain.SubscriptionRequest{
		UserTelegramID:    user.TelegramID,
		Username:          user.Username,
		ChatID:            s.ChatID,
		ChatName:          s.ChatName,
		PaymentMethod:     domain.PaymentMethod(s.PaymentMethod),
		InvoiceNumber:     s.InvoiceNumber,
		ExternalAccountID: externalID,
		Status:            domain.StatusPending,
	}
	if s.RenewSubscriptionID != 0 {
		renewID := s.RenewSubscriptionID
		req.SubscriptionID = &renewID
	}

	// Reset before returning so a re-delivered message cannot commit twice.
	s.Reset()
	s.Step = session.StepFeedback
	return []Effect{
		CreateSubscriptionRequest{Request: req},
		PromptText{Text: "Your request was received and is being reviewed. We will message you once it is resolved."},
		PromptRating{Text: "How was your experience so far?"},
	}, nil
}

func (m *Machine) onRenewSelectSubscription(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	if in.Kind != InputButton {
		return prompt("Please pick a subscription using the buttons."), nil
	}
	sub, err := m.store.SubscriptionByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prompt("Please pick a subscription using the buttons."), nil
		}
		return nil, err
	}
	if sub.UserID != user.ID || !sub.IsActive {
		return prompt("Please pick a subscription using the buttons."), nil
	}

	s.RenewSubscriptionID = sub.ID
	s.ChatID = sub.ChatID
	s.ChatName = sub.ChatName
	s.Step = session.StepPaymentMethod
	return []Effect{PromptPaymentMethods{
		Text:    "How did you pay?",
		Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayOther},
	}}, nil
}

func (m *Machine) onTrainingSelectDate(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	date, err := ParseFutureDate(in.Text, m.now())
	if err != nil {
		return []Effect{PromptDates{Text: "Pick a date for your session:", Dates: bookableDates(m.now(), 7)}}, nil
	}
	reserved, err := m.store.ReservedSlots(ctx, date)
	if err != nil {
		return nil, err
	}
	free := freeSlots(reserved)
	if len(free) == 0 {
		return []Effect{PromptDates{
			Text:  "That day is fully booked. Pick another date:",
			Dates: bookableDates(m.now(), 7),
		}}, nil
	}
	s.TrainingDate = date
	s.Step = session.StepTrainingSelectTime
	return []Effect{PromptTimes{Text: "Pick a time:", Times: free}}, nil
}

func (m *Machine) onTrainingSelectTime(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	reserved, err := m.store.ReservedSlots(ctx, s.TrainingDate)
	if err != nil {
		return nil, err
	}
	free := freeSlots(reserved)
	chosen := strings.TrimSpace(in.Text)
	valid := false
	for _, slot := range free {
		if slot == chosen {
			valid = true
			break
		}
	}
	if !valid {
		return []Effect{PromptTimes{Text: "Pick a time using the buttons:", Times: free}}, nil
	}

	s.TrainingTime = chosen
	s.Step = session.StepTrainingPaymentMethod
	return []Effect{PromptPaymentMethods{
		Text:    "How did you pay?",
		Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayTrial, domain.PayOther},
	}}, nil
}

func (m *Machine) onTrainingPaymentMethod(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	method, err := domain.ParsePaymentMethod(in.Text)
	if err != nil {
		return []Effect{PromptPaymentMethods{
			Text:    "Please choose a payment method using the buttons.",
			Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayTrial, domain.PayOther},
		}}, nil
	}
	s.PaymentMethod = string(method)
	if method == domain.PayTrial {
		return m.commitTraining(user, s), nil
	}
	s.Step = session.StepTrainingInvoice
	return prompt("Enter your invoice number:"), nil
}

func (m *Machine) onTrainingInvoice(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	invoice := strings.TrimSpace(in.Text)
	if in.Kind != InputText || invoice == "" {
		return prompt("Enter your invoice number:"), nil
	}
	s.InvoiceNumber = invoice
	return m.commitTraining(user, s), nil
}

func (m *Machine) commitTraining(user domain.User, s *session.Session) []Effect {
	req := domain.TrainingRequest{
		UserTelegramID: user.TelegramID,
		Username:       user.Username,
		SessionDate:    s.TrainingDate,
		SessionTime:    s.TrainingTime,
		PaymentMethod:  domain.PaymentMethod(s.PaymentMethod),
		InvoiceNumber:  s.InvoiceNumber,
		Status:         domain.StatusPending,
	}
	s.Reset()
	s.Step = session.StepFeedback
	return []Effect{
		CreateTrainingRequest{Request: req},
		PromptText{Text: "Your booking request was received and is being reviewed."},
		PromptRating{Text: "How was your experience so far?"},
	}
}

func (m *Machine) onFeedback(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	if in.Kind != InputButton || in.ID < 1 || in.ID > 5 {
		return []Effect{PromptRating{Text: "Please rate from 1 to 5 using the buttons."}}, nil
	}
	if in.ID <= 3 {
		s.FeedbackRating = int(in.ID)
		s.Step = session.StepFeedbackComment
		return prompt("Sorry to hear that. What went wrong?"), nil
	}
	s.Reset()
	return prompt("Thank you for your feedback!"), nil
}

func (m *Machine) onFeedbackComment(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	comment := strings.TrimSpace(in.Text)
	if in.Kind != InputText || comment == "" {
		return prompt("What went wrong?"), nil
	}
	rating := s.FeedbackRating
	s.Reset()
	return []Effect{
		NotifyStaff{
			FromTelegramID: user.TelegramID,
			FromUsername:   user.Username,
			Text:           fmt.Sprintf("Feedback (%d/5): %s", rating, comment),
		},
		PromptText{Text: "Thank you, we will look into it."},
	}, nil
}

func (m *Machine) onSupportMessage(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	text := strings.TrimSpace(in.Text)
	if in.Kind != InputText || text == "" {
		return prompt("Type your message and our team will get back to you."), nil
	}
	s.Reset()
	return []Effect{
		NotifyStaff{FromTelegramID: user.TelegramID, FromUsername: user.Username, Text: text},
		PromptText{Text: "Your message was sent to our support team."},
	}, nil
}
