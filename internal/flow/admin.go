package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"membot/internal/domain"
	"membot/internal/session"
	"membot/internal/store"
)

// StartApprove begins resolving a pending request as approved.
// Subscription approvals need an end date first; training approvals commit
// immediately and the resolver assigns a coach.
func (m *Machine) StartApprove(s *session.Session, requestID int64, training bool) []Effect {
	if training {
		s.Reset()
		return []Effect{
			ApproveRequest{ID: requestID, Training: true},
			PromptText{Text: "Approved."},
		}
	}
	s.Reset()
	s.ResolveRequestID = requestID
	s.Step = session.StepAwaitEndDate
	return prompt("Enter the subscription end date (DD/MM/YYYY):")
}

// StartDecline begins resolving a pending request as declined.
func (m *Machine) StartDecline(s *session.Session, requestID int64, training bool) []Effect {
	s.Reset()
	s.ResolveRequestID = requestID
	s.ResolveTraining = training
	s.Step = session.StepAwaitRejectReason
	return prompt("Enter the rejection reason:")
}

// StartStaffRenew begins the staff-side manual renewal flow.
func (m *Machine) StartStaffRenew(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepStaffRenewUser
	return prompt("Send the client's Telegram ID:")
}

// StartSupportReply begins replying to a relayed support message.
func (m *Machine) StartSupportReply(s *session.Session, userTelegramID int64) []Effect {
	s.Reset()
	s.SupportReplyUserID = userTelegramID
	s.Step = session.StepSupportReply
	return prompt("Type your reply to the client:")
}

// StartAddEmployee begins registering a staff member.
func (m *Machine) StartAddEmployee(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepEmployeeContact
	return prompt("Send the employee as: <telegram_id> <username> [first name] [last name]")
}

// StartSetWelcome begins editing the welcome message.
func (m *Machine) StartSetWelcome(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepSetWelcomeMessage
	return prompt("Send the new welcome message:")
}

// StartSetSallaLink begins editing the store link.
func (m *Machine) StartSetSallaLink(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepSetSallaLink
	return prompt("Send the new store link:")
}

// StartOfferMessage begins scheduling a recurring offer broadcast.
func (m *Machine) StartOfferMessage(s *session.Session) []Effect {
	s.Reset()
	s.Step = session.StepOfferContent
	return prompt("Send the offer message text:")
}

// StartGroupFamily begins attaching a subgroup to a main group.
func (m *Machine) StartGroupFamily(ctx context.Context, s *session.Session) ([]Effect, error) {
	groups, err := m.store.MainGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("start group family: %w", err)
	}
	if len(groups) < 2 {
		s.Reset()
		return prompt("At least two registered groups are needed to build a family."), nil
	}
	s.Reset()
	s.Step = session.StepFamilySelectParent
	return []Effect{PromptGroups{Text: "Choose the main group:", Groups: groups}}, nil
}

func (m *Machine) onAwaitEndDate(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	endDate, err := ParseFutureDate(strings.TrimSpace(in.Text), m.now())
	if err != nil {
		return prompt("Invalid date. Enter a future date as DD/MM/YYYY:"), nil
	}
	requestID := s.ResolveRequestID
	s.Reset()
	return []Effect{
		ApproveRequest{ID: requestID, EndDate: endDate},
		PromptText{Text: "Approved."},
	}, nil
}

func (m *Machine) onAwaitRejectReason(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	reason := strings.TrimSpace(in.Text)
	if in.Kind != InputText || reason == "" {
		return prompt("Enter the rejection reason:"), nil
	}
	requestID, training := s.ResolveRequestID, s.ResolveTraining
	s.Reset()
	return []Effect{
		DeclineRequest{ID: requestID, Training: training, Reason: reason},
		PromptText{Text: "Declined."},
	}, nil
}

func (m *Machine) onStaffRenewUser(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	telegramID, err := strconv.ParseInt(strings.TrimSpace(in.Text), 10, 64)
	if err != nil {
		return prompt("Send a numeric Telegram ID:"), nil
	}
	client, err := m.store.UserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prompt("No client with that ID. Send the client's Telegram ID:"), nil
		}
		return nil, err
	}
	subs, err := m.store.ActiveSubscriptionsByUser(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		s.Reset()
		return prompt("That client has no active subscriptions."), nil
	}
	s.StaffRenewUserID = client.ID
	s.Step = session.StepStaffRenewSelectSubscription
	return []Effect{PromptSubscriptions{Text: "Choose the subscription to renew:", Subscriptions: subs}}, nil
}

func (m *Machine) onStaffRenewSelectSubscription(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
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
	if sub.UserID != s.StaffRenewUserID || !sub.IsActive {
		return prompt("Please pick a subscription using the buttons."), nil
	}
	s.RenewSubscriptionID = sub.ID
	s.Step = session.StepStaffRenewEndDate
	return prompt("Enter the new end date (DD/MM/YYYY):"), nil
}

func (m *Machine) onStaffRenewEndDate(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	endDate, err := ParseFutureDate(strings.TrimSpace(in.Text), m.now())
	if err != nil {
		return prompt("Invalid date. Enter a future date as DD/MM/YYYY:"), nil
	}
	s.EndDate = endDate
	s.Step = session.StepStaffRenewPaymentMethod
	return []Effect{PromptPaymentMethods{
		Text:    "How did the client pay?",
		Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayOther},
	}}, nil
}

func (m *Machine) onStaffRenewPaymentMethod(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	method, err := domain.ParsePaymentMethod(in.Text)
	if err != nil || method == domain.PayTrial {
		return []Effect{PromptPaymentMethods{
			Text:    "Please choose a payment method using the buttons.",
			Methods: []domain.PaymentMethod{domain.PaySalla, domain.PaySTC, domain.PayOther},
		}}, nil
	}
	s.PaymentMethod = string(method)
	if method == domain.PayOther {
		return m.commitStaffRenew(s), nil
	}
	s.Step = session.StepStaffRenewInvoice
	return prompt("Enter the invoice number:"), nil
}

func (m *Machine) onStaffRenewInvoice(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	invoice := strings.TrimSpace(in.Text)
	if in.Kind != InputText || invoice == "" {
		return prompt("Enter the invoice number:"), nil
	}
	s.InvoiceNumber = invoice
	return m.commitStaffRenew(s), nil
}

func (m *Machine) commitStaffRenew(s *session.Session) []Effect {
	eff := RenewSubscription{
		OldID:         s.RenewSubscriptionID,
		EndDate:       s.EndDate,
		PaymentMethod: domain.PaymentMethod(s.PaymentMethod),
		InvoiceNumber: s.InvoiceNumber,
	}
	s.Reset()
	return []Effect{
		eff,
		PromptText{Text: fmt.Sprintf("Renewed until %s.", FormatDate(eff.EndDate))},
	}
}

func (m *Machine) onSupportReply(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	text := strings.TrimSpace(in.Text)
	if in.Kind != InputText || text == "" {
		return prompt("Type your reply to the client:"), nil
	}
	target := s.SupportReplyUserID
	s.Reset()
	return []Effect{
		SendDirect{TelegramID: target, Text: "Support: " + text},
		PromptText{Text: "Reply sent."},
	}, nil
}

func (m *Machine) onEmployeeContact(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	fields := strings.Fields(in.Text)
	if in.Kind != InputText || len(fields) < 2 {
		return prompt("Send the employee as: <telegram_id> <username> [first name] [last name]"), nil
	}
	telegramID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return prompt("The Telegram ID must be numeric. Try again:"), nil
	}
	s.EmployeeTelegramID = telegramID
	s.EmployeeUsername = strings.TrimPrefix(fields[1], "@")
	if len(fields) > 2 {
		s.EmployeeFirstName = fields[2]
	}
	if len(fields) > 3 {
		s.EmployeeLastName = strings.Join(fields[3:], " ")
	}
	s.Step = session.StepEmployeeRole
	return []Effect{PromptRoles{
		Text:  "Choose a role:",
		Roles: []domain.Role{domain.RoleAdmin, domain.RoleEmployee, domain.RoleTutor},
	}}, nil
}

func (m *Machine) onEmployeeRole(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	role, err := domain.ParseRole(in.Text)
	if err != nil {
		return []Effect{PromptRoles{
			Text:  "Choose a role using the buttons:",
			Roles: []domain.Role{domain.RoleAdmin, domain.RoleEmployee, domain.RoleTutor},
		}}, nil
	}
	employee := domain.Employee{
		TelegramID: s.EmployeeTelegramID,
		Username:   s.EmployeeUsername,
		FirstName:  s.EmployeeFirstName,
		LastName:   s.EmployeeLastName,
		Role:       role,
	}
	s.Reset()
	return []Effect{
		UpsertEmployee{Employee: employee},
		PromptText{Text: "Employee saved."},
	}, nil
}

func (m *Machine) onSetWelcomeMessage(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	text := strings.TrimSpace(in.Text)
	if in.Kind != InputText || text == "" {
		return prompt("Send the new welcome message:"), nil
	}
	s.Reset()
	return []Effect{
		SaveSetting{Key: domain.SettingWelcomeMessage, Value: text},
		PromptText{Text: "Welcome message updated."},
	}, nil
}

func (m *Machine) onSetSallaLink(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	link := strings.TrimSpace(in.Text)
	if in.Kind != InputText || !strings.HasPrefix(link, "http") {
		return prompt("Send a valid link starting with http:"), nil
	}
	s.Reset()
	return []Effect{
		SaveSetting{Key: domain.SettingSallaLink, Value: link},
		PromptText{Text: "Store link updated."},
	}, nil
}

func (m *Machine) onOfferContent(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	text := strings.TrimSpace(in.Text)
	if in.Kind != InputText || text == "" {
		return prompt("Send the offer message text:"), nil
	}
	s.OfferContent = text
	s.Step = session.StepOfferPerPeriod
	return prompt("How many times per two weeks should it be sent? Send a number:"), nil
}

func (m *Machine) onOfferPerPeriod(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	n, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || n < 1 {
		return prompt("Send a positive number of sends per two weeks:"), nil
	}
	content := s.OfferContent
	s.Reset()
	return []Effect{
		CreateOfferMessage{Content: content, PerPeriod: n},
		PromptText{Text: fmt.Sprintf("Offer message scheduled, %d send(s) per two weeks.", n)},
	}, nil
}

func (m *Machine) onFamilySelectParent(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	if in.Kind != InputButton {
		return prompt("Please pick a group using the buttons."), nil
	}
	parent, err := m.store.GroupByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return prompt("Please pick a group using the buttons."), nil
		}
		return nil, err
	}
	if parent.IsSubgroup() {
		return prompt("That group is already a subgroup; pick a main group."), nil
	}

	groups, err := m.store.MainGroups(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.Group, 0, len(groups))
	for _, g := range groups {
		if g.ID != parent.ID {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		s.Reset()
		return prompt("No other groups are available to attach."), nil
	}

	s.FamilyParentID = parent.ID
	s.Step = session.StepFamilySelectChild
	return []Effect{PromptGroups{Text: "Choose the subgroup to attach:", Groups: candidates}}, nil
}

func (m *Machine) onFamilySelectChild(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	if in.Kind != InputButton {
		return prompt("Please pick a group using the buttons."), nil
	}
	if in.ID == s.FamilyParentID {
		return prompt("A group cannot be attached to itself. Pick another group:"), nil
	}
	parentID := s.FamilyParentID
	s.Reset()
	return []Effect{
		AssignGroupParent{GroupID: in.ID, ParentID: parentID},
		PromptText{Text: "Subgroup attached."},
	}, nil
}
