package botapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	coretelegram "membot/core/telegram"
	"membot/core/telegram/callbacks"
	"membot/core/telegram/commands"
	"membot/core/telegram/helpers"
	"membot/core/telegram/middleware"
	"membot/core/telegram/router"
	"membot/internal/broadcast"
	"membot/internal/domain"
	"membot/internal/flow"
	"membot/internal/gateway"
	"membot/internal/session"

	tele "gopkg.in/telebot.v4"
)

const defaultWelcome = "Welcome! Use /subscribe to join a group, /training to book a session or /support to reach our team."

// flowStart bundles the per-update state handed to flow entry points.
type flowStart struct {
	ctx  context.Context
	user domain.User
	s    *session.Session
}

// ClientApp is the subscriber-facing bot.
type ClientApp struct {
	*App
}

// NewClientApp bootstraps the client bot.
func NewClientApp(cfg *Config) (*ClientApp, error) {
	app, err := Bootstrap(cfg)
	if err != nil {
		return nil, err
	}
	return &ClientApp{App: app}, nil
}

// TelegramRunOptions assembles the client bot's registry, routes and hooks.
func (ca *ClientApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     ca.handleStart,
		Description: "Show the welcome message",
	})
	reg.RegisterCommand("/subscribe", commands.Command{
		Handler: ca.startFlow(func(in flowStart) ([]flow.Effect, error) {
			return ca.machine.StartSubscribe(in.ctx, in.user, in.s, false)
		}),
		Description: "Subscribe to a group",
	})
	reg.RegisterCommand("/trial", commands.Command{
		Handler: ca.startFlow(func(in flowStart) ([]flow.Effect, error) {
			return ca.machine.StartSubscribe(in.ctx, in.user, in.s, true)
		}),
		Description: "Request a free trial",
	})
	reg.RegisterCommand("/renew", commands.Command{
		Handler: ca.startFlow(func(in flowStart) ([]flow.Effect, error) {
			return ca.machine.StartRenew(in.ctx, in.user, in.s)
		}),
		Description: "Renew a subscription",
	})
	reg.RegisterCommand("/training", commands.Command{
		Handler: ca.startFlow(func(in flowStart) ([]flow.Effect, error) {
			return ca.machine.StartTraining(in.ctx, in.user, in.s)
		}),
		Description: "Book a training session",
	})
	reg.RegisterCommand("/support", commands.Command{
		Handler: ca.startFlow(func(in flowStart) ([]flow.Effect, error) {
			return ca.machine.StartSupport(in.s), nil
		}),
		Description: "Contact support",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     ca.handleStatus,
		Description: "Show your active subscriptions",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     ca.handleCancel,
		Description: "Cancel the current operation",
	})

	ca.registerFlowCallbacks(reg)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(conversation{app: ca.App}, reg, router.TextOptions{
		UnknownText: func(c tele.Context) error {
			return helpers.SendMD(c, "I did not understand that. Try /start for the list of commands.")
		},
	})...)

	middlewares := coretelegram.DefaultMiddlewares(&ca.cfg.Core, nil)
	middlewares = append(middlewares, coretelegram.Middleware{
		Name: "private_only",
		Use:  middleware.PrivateChatOnlyMiddleware(nil),
	})

	return coretelegram.RunOptions{
		Config:      &ca.cfg.Core,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			ca.gw = gateway.New(rt.Bot)

			b := broadcast.New(ca.store, ca.gw)
			ca.startBackground(b.Run)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			ca.stopBackground()
			return ca.Close()
		},
	}, nil
}

func (ca *ClientApp) handleStart(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	sender := c.Sender()
	if _, err := ca.store.UpsertUser(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName); err != nil {
		return err
	}

	welcome, err := ca.store.GetSetting(ctx, domain.SettingWelcomeMessage)
	if err != nil {
		welcome = defaultWelcome
	}
	return helpers.SendMD(c, welcome)
}

func (ca *ClientApp) handleStatus(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	sender := c.Sender()
	user, err := ca.store.UpsertUser(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
	if err != nil {
		return err
	}

	subs, err := ca.store.ActiveSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return helpers.SendMD(c, "You have no active subscriptions. Use /subscribe to join a group.")
	}

	var b strings.Builder
	b.WriteString("*Your subscriptions:*")
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n%s until %s (%d day(s) left)",
			sub.ChatName, flow.FormatDate(sub.EndDate), sub.DaysLeft(time.Now()))
	}
	return helpers.SendMD(c, b.String())
}

func (ca *ClientApp) handleCancel(c tele.Context) error {
	ca.sessions.Get(c.Sender().ID).Reset()
	return helpers.SendMD(c, "Cancelled.")
}

// registerFlowCallbacks binds the prompt buttons back into the flow machine.
func (ca *ClientApp) registerFlowCallbacks(reg *coretelegram.Registry) {
	_ = reg.RegisterCallback(cbGroup, ca.refCallback(callbacks.KindGroup))
	_ = reg.RegisterCallback(cbSubscription, ca.refCallback(callbacks.KindSubscription))
	_ = reg.RegisterCallback(cbPayment, ca.tokenCallback())
	_ = reg.RegisterCallback(cbDate, ca.tokenCallback())
	_ = reg.RegisterCallback(cbSlot, ca.tokenCallback())
	_ = reg.RegisterCallback(cbRating, ca.ratingCallback())
}

func (ca *ClientApp) refCallback(kind callbacks.Kind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ref, err := callbacks.RefFrom(c, kind)
		if err != nil {
			return helpers.SendMD(c, "That button is no longer valid.")
		}
		return ca.feed(c, flow.Input{Kind: flow.InputButton, ID: ref.ID})
	}
}

func (ca *ClientApp) tokenCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return ca.feed(c, flow.Input{Kind: flow.InputButton, Text: callbacks.CallbackPayload(c)})
	}
}

func (ca *ClientApp) ratingCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		n, err := strconv.ParseInt(strings.TrimSpace(callbacks.CallbackPayload(c)), 10, 64)
		if err != nil {
			return helpers.SendMD(c, "That button is no longer valid.")
		}
		return ca.feed(c, flow.Input{Kind: flow.InputButton, ID: n})
	}
}

// startFlow adapts a flow entry point into a command handler.
func (ca *ClientApp) startFlow(start func(flowStart) ([]flow.Effect, error)) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		sender := c.Sender()
		user, err := ca.store.UpsertUser(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
		if err != nil {
			return err
		}
		s := ca.sessions.Get(sender.ID)
		effects, err := start(flowStart{ctx: ctx, user: user, s: s})
		if err != nil {
			return err
		}
		return ca.apply(ctx, c, effects)
	}
}
