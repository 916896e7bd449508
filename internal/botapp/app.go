// Package botapp wires the admin and client bots: configuration, bootstrap,
// command and callback registration, and the flow effect interpreter.
package botapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"membot/core/bootstrap"
	"membot/core/logger"
	"membot/core/telegram/helpers"
	"membot/internal/flow"
	"membot/internal/gateway"
	"membot/internal/session"
	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// App carries the shared state of one bot process.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	store    *store.Store
	sessions *session.Manager
	machine  *flow.Machine

	// gw is set once the bot connects, before any handler runs.
	gw *gateway.Gateway

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// Bootstrap initializes logging, the database and the domain store.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
		Seeders:  []bootstrap.Seeder{groupSeeder(cfg.App.Groups)},
	})
	if err != nil {
		return nil, err
	}

	st := store.New(res.DB)
	return &App{
		cfg:      cfg,
		db:       res.DB,
		store:    st,
		sessions: session.NewManager(),
		machine:  flow.New(st, nil),
	}, nil
}

// groupSeeder registers configured groups and their family links on startup.
func groupSeeder(seeds []GroupSeed) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		if len(seeds) == 0 {
			return nil
		}
		st := store.New(db)
		byTitle := make(map[string]int64, len(seeds))
		for _, seed := range seeds {
			g, err := st.UpsertGroup(ctx, seed.TelegramID, seed.Title)
			if err != nil {
				return fmt.Errorf("seed group %q: %w", seed.Title, err)
			}
			byTitle[seed.Title] = g.ID
		}
		for _, seed := range seeds {
			if seed.Parent == "" {
				continue
			}
			if err := st.AssignParent(ctx, byTitle[seed.Title], byTitle[seed.Parent]); err != nil {
				return fmt.Errorf("seed family %q -> %q: %w", seed.Title, seed.Parent, err)
			}
		}
		if logger.SEED != nil {
			logger.SEED.Info("groups seeded", slog.Int("count", len(seeds)))
		}
		return nil
	})
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Store exposes the domain store, mainly for the role directory.
func (a *App) Store() *store.Store { return a.store }

// conversation adapts the session manager and flow machine to the router's
// Conversation interface for text updates.
type conversation struct {
	app *App
}

func (cv conversation) InProgress(userID int64) bool {
	return cv.app.sessions.InProgress(userID)
}

func (cv conversation) HandleUpdate(c tele.Context) error {
	return cv.app.feed(c, flow.Input{Kind: flow.InputText, Text: c.Text()})
}

// feed runs one input through the flow machine and applies the effects.
func (a *App) feed(c tele.Context, in flow.Input) error {
	ctx := helpers.BuildContext(c)
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, err := a.store.UpsertUser(ctx, sender.ID, sender.Username, sender.FirstName, sender.LastName)
	if err != nil {
		return err
	}

	s := a.sessions.Get(sender.ID)
	effects, err := a.machine.Transition(ctx, user, s, in)
	if err != nil {
		return err
	}
	return a.apply(ctx, c, effects)
}

// startBackground launches the given tasks tied to the app lifecycle.
func (a *App) startBackground(tasks ...func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(logger.Background())
	a.bgCancel = cancel
	for _, task := range tasks {
		task := task
		a.bgWG.Add(1)
		go func() {
			defer a.bgWG.Done()
			task(ctx)
		}()
	}
}

// stopBackground cancels background tasks and waits for them to drain.
func (a *App) stopBackground() {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.bgWG.Wait()
}
