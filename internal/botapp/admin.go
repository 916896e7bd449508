package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	coretelegram "membot/core/telegram"
	"membot/core/telegram/callbacks"
	"membot/core/telegram/commands"
	"membot/core/telegram/format"
	"membot/core/telegram/helpers"
	"membot/core/telegram/middleware"
	"membot/core/telegram/router"
	"membot/internal/broadcast"
	"membot/internal/flow"
	"membot/internal/gateway"
	"membot/internal/resolver"
	"membot/internal/store"
	"membot/internal/sweeper"

	tele "gopkg.in/telebot.v4"
)

// AdminApp is the staff-facing bot. It also owns the background resolver,
// sweeper and daily report.
type AdminApp struct {
	*App
}

// NewAdminApp bootstraps the admin bot.
func NewAdminApp(cfg *Config) (*AdminApp, error) {
	app, err := Bootstrap(cfg)
	if err != nil {
		return nil, err
	}
	return &AdminApp{App: app}, nil
}

// TelegramRunOptions assembles the admin bot's registry, routes and hooks.
func (aa *AdminApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     aa.handleStart,
		Description: "Show staff commands",
		StaffOnly:   true,
	})
	reg.RegisterCommand("/renew", commands.Command{
		Handler:     aa.startStaffFlow(func(in flowStart) []flow.Effect { return aa.machine.StartStaffRenew(in.s) }),
		Description: "Manually renew a client's subscription",
		StaffOnly:   true,
	})
	reg.RegisterCommand("/employee_add", commands.Command{
		Handler:     aa.startStaffFlow(func(in flowStart) []flow.Effect { return aa.machine.StartAddEmployee(in.s) }),
		Description: "Register a staff member",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/employees", commands.Command{
		Handler:     aa.handleEmployees,
		Description: "List staff members",
		StaffOnly:   true,
	})
	reg.RegisterCommand("/employee_remove", commands.Command{
		Handler:     aa.handleEmployeeRemove,
		Description: "Remove a staff member by Telegram ID",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/set_welcome", commands.Command{
		Handler:     aa.startStaffFlow(func(in flowStart) []flow.Effect { return aa.machine.StartSetWelcome(in.s) }),
		Description: "Edit the client welcome message",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/set_link", commands.Command{
		Handler:     aa.startStaffFlow(func(in flowStart) []flow.Effect { return aa.machine.StartSetSallaLink(in.s) }),
		Description: "Edit the store link",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/offer_message", commands.Command{
		Handler:     aa.startStaffFlow(func(in flowStart) []flow.Effect { return aa.machine.StartOfferMessage(in.s) }),
		Description: "Schedule a recurring offer broadcast",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/offer_messages", commands.Command{
		Handler:     aa.handleOfferMessages,
		Description: "List scheduled offer broadcasts",
		StaffOnly:   true,
	})
	reg.RegisterCommand("/family", commands.Command{
		Handler:     aa.handleFamily,
		Description: "Attach a subgroup to a main group",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/report", commands.Command{
		Handler:     aa.handleReport,
		Description: "Send the membership report now",
		StaffOnly:   true,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler: func(c tele.Context) error {
			aa.sessions.Get(c.Sender().ID).Reset()
			return helpers.SendMD(c, "Cancelled.")
		},
		Description: "Cancel the current operation",
		StaffOnly:   true,
	})

	access := middleware.AccessOptions{
		Directory: aa.store,
		OnReject: func(c tele.Context) error {
			return helpers.SendMD(c, "You are not authorized to do that.")
		},
	}
	aa.registerStaffCallbacks(reg, access)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{Access: access})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(conversation{app: aa.App}, reg, router.TextOptions{})...)
	routes = append(routes, coretelegram.Route{
		Endpoint: tele.OnUserJoined,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(aa.handleUserJoined)),
	})

	return coretelegram.RunOptions{
		Config:      &aa.cfg.Core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(&aa.cfg.Core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			aa.gw = gateway.New(rt.Bot)

			res := resolver.New(aa.store, aa.gw, aa.cfg.App.SupportChatID,
				time.Duration(aa.cfg.App.ResolveIntervalSeconds)*time.Second)
			sw := sweeper.New(aa.store, aa.gw, aa.cfg.App.SweepHour)

			aa.startBackground(res.Run, sw.Run, aa.runDailyReport)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			aa.stopBackground()
			return aa.Close()
		},
	}, nil
}

func (aa *AdminApp) handleStart(c tele.Context) error {
	return helpers.SendMD(c, strings.Join([]string{
		"*Staff commands:*",
		"/renew - manually renew a client's subscription",
		"/employees - list staff",
		"/employee\\_add - register a staff member",
		"/employee\\_remove - remove a staff member",
		"/set\\_welcome - edit the welcome message",
		"/set\\_link - edit the store link",
		"/offer\\_message - schedule a recurring offer broadcast",
		"/offer\\_messages - list scheduled offer broadcasts",
		"/family - attach a subgroup to a main group",
		"/report - membership report",
		"/cancel - abort the current operation",
	}, "\n"))
}

func (aa *AdminApp) handleEmployees(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	list, err := aa.store.Employees(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return helpers.SendMD(c, "No staff registered yet.")
	}
	var b strings.Builder
	b.WriteString("*Staff:*")
	for _, e := range list {
		fmt.Fprintf(&b, "\n%s (@%s) - %s, id %d", e.FullName(), e.Username, e.Role, e.TelegramID)
	}
	return helpers.SendMD(c, b.String())
}

func (aa *AdminApp) handleEmployeeRemove(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	arg := strings.TrimSpace(c.Message().Payload)
	telegramID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return helpers.SendMD(c, "Usage: /employee\\_remove <telegram\\_id>")
	}
	if err := aa.store.RemoveEmployee(ctx, telegramID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return helpers.SendMD(c, "No staff member with that ID.")
		}
		return err
	}
	return helpers.SendMD(c, "Removed.")
}

func (aa *AdminApp) handleFamily(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	s := aa.sessions.Get(c.Sender().ID)
	effects, err := aa.machine.StartGroupFamily(ctx, s)
	if err != nil {
		return err
	}
	return aa.apply(ctx, c, effects)
}

func (aa *AdminApp) handleOfferMessages(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	offers, err := aa.store.OfferMessages(ctx)
	if err != nil {
		return err
	}
	if len(offers) == 0 {
		return helpers.SendMD(c, "No offer messages scheduled. Use /offer\\_message to add one.")
	}

	now := time.Now()
	start, err := broadcast.PeriodStart(ctx, aa.store, now)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("*Offer messages:*")
	for _, o := range offers {
		fmt.Fprintf(&b, "\n\n#%d, %d send(s) per two weeks:\n%s", o.ID, o.PerPeriod, format.EscapeMD(o.Content))
		for _, t := range o.SendingTimes(start) {
			state := "upcoming"
			if t.Before(now) {
				state = "passed"
			}
			fmt.Fprintf(&b, "\n%s - %s", t.Format("02/01/2006 15:04"), state)
		}
	}
	return helpers.SendMD(c, b.String())
}

func (aa *AdminApp) handleReport(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	text, err := aa.membershipReport(ctx, time.Now())
	if err != nil {
		return err
	}
	return helpers.SendMD(c, text)
}

// registerStaffCallbacks binds request resolution, support replies and the
// admin-side prompt buttons. Callbacks bypass the command middleware, so
// each one re-checks staff access.
func (aa *AdminApp) registerStaffCallbacks(reg *coretelegram.Registry, access middleware.AccessOptions) {
	staff := middleware.StaffOnlyMiddleware(access)

	_ = reg.RegisterCallback(resolver.CallbackApproveRequest, staff(aa.resolveCallback(callbacks.KindRequest, true)))
	_ = reg.RegisterCallback(resolver.CallbackDeclineRequest, staff(aa.resolveCallback(callbacks.KindRequest, false)))
	_ = reg.RegisterCallback(resolver.CallbackApproveTraining, staff(aa.resolveCallback(callbacks.KindTraining, true)))
	_ = reg.RegisterCallback(resolver.CallbackDeclineTraining, staff(aa.resolveCallback(callbacks.KindTraining, false)))
	_ = reg.RegisterCallback(cbSupportReply, staff(aa.supportReplyCallback()))

	_ = reg.RegisterCallback(cbRole, staff(func(c tele.Context) error {
		return aa.feed(c, flow.Input{Kind: flow.InputButton, Text: callbacks.CallbackPayload(c)})
	}))
	_ = reg.RegisterCallback(cbGroup, staff(aa.refFeedCallback(callbacks.KindGroup)))
	_ = reg.RegisterCallback(cbSubscription, staff(aa.refFeedCallback(callbacks.KindSubscription)))
}

// resolveCallback starts the approve or decline flow for the referenced
// request and renders the first prompt (or the immediate commit).
func (aa *AdminApp) resolveCallback(kind callbacks.Kind, approve bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		ref, err := callbacks.RefFrom(c, kind)
		if err != nil {
			return helpers.SendMD(c, "That button is no longer valid.")
		}
		ctx := helpers.BuildContext(c)
		s := aa.sessions.Get(c.Sender().ID)
		training := kind == callbacks.KindTraining

		var effects []flow.Effect
		if approve {
			effects = aa.machine.StartApprove(s, ref.ID, training)
		} else {
			effects = aa.machine.StartDecline(s, ref.ID, training)
		}
		return aa.apply(ctx, c, effects)
	}
}

func (aa *AdminApp) supportReplyCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		ref, err := callbacks.RefFrom(c, callbacks.KindUser)
		if err != nil {
			return helpers.SendMD(c, "That button is no longer valid.")
		}
		ctx := helpers.BuildContext(c)
		s := aa.sessions.Get(c.Sender().ID)
		return aa.apply(ctx, c, aa.machine.StartSupportReply(s, ref.ID))
	}
}

func (aa *AdminApp) refFeedCallback(kind callbacks.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ref, err := callbacks.RefFrom(c, kind)
		if err != nil {
			return helpers.SendMD(c, "That button is no longer valid.")
		}
		return aa.feed(c, flow.Input{Kind: flow.InputButton, ID: ref.ID})
	}
}

// startStaffFlow adapts a session-only flow entry point into a handler.
func (aa *AdminApp) startStaffFlow(start func(flowStart) []flow.Effect) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		s := aa.sessions.Get(c.Sender().ID)
		return aa.apply(ctx, c, start(flowStart{ctx: ctx, s: s}))
	}
}

// handleUserJoined enforces the join gate: anyone entering a managed group
// without an active subscription covering it is removed on the spot.
func (aa *AdminApp) handleUserJoined(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	group, err := aa.store.GroupByTelegramID(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	// Family subgroups are covered by the main group's subscription.
	coveringChatID := group.TelegramID
	if group.IsSubgroup() {
		parent, err := aa.store.GroupByID(ctx, *group.ParentID)
		if err != nil {
			return err
		}
		coveringChatID = parent.TelegramID
	}

	joined := c.Message().UserJoined
	if joined == nil {
		return nil
	}
	if joined.IsBot {
		return nil
	}

	if _, ok := aa.store.RoleOf(ctx, joined.ID); ok {
		return nil
	}

	user, err := aa.store.UserByTelegramID(ctx, joined.ID)
	if err == nil {
		if _, serr := aa.store.ActiveSubscription(ctx, user.ID, coveringChatID); serr == nil {
			return nil
		} else if !errors.Is(serr, store.ErrNotFound) {
			return serr
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return aa.gw.RemoveMember(ctx, chat.ID, joined.ID)
}
