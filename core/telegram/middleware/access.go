package middleware

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// Staff role names shared between bots and the employee directory.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleTutor    = "tutor"
)

// RoleDirectory resolves the staff role of a Telegram user.
// The second result reports whether the user is registered staff at all.
type RoleDirectory interface {
	RoleOf(ctx context.Context, telegramID int64) (string, bool)
}

// AccessOptions defines how access checks behave.
type AccessOptions struct {
	Directory RoleDirectory
	OnReject  tele.HandlerFunc
}

func reject(opts AccessOptions, c tele.Context) error {
	if opts.OnReject != nil {
		return opts.OnReject(c)
	}
	return nil
}

// StaffOnlyMiddleware admits users registered in the directory with any role.
func StaffOnlyMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Directory == nil {
				return reject(opts, c)
			}
			if _, ok := opts.Directory.RoleOf(context.Background(), c.Sender().ID); !ok {
				return reject(opts, c)
			}
			return next(c)
		}
	}
}

// AdminOnlyMiddleware admits only users holding the admin role.
func AdminOnlyMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Directory == nil {
				return reject(opts, c)
			}
			role, ok := opts.Directory.RoleOf(context.Background(), c.Sender().ID)
			if !ok || role != RoleAdmin {
				return reject(opts, c)
			}
			return next(c)
		}
	}
}

// PrivateChatOnlyMiddleware skips updates originating outside private chats.
func PrivateChatOnlyMiddleware(onSkip tele.HandlerFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || chat.Type != tele.ChatPrivate {
				if onSkip != nil {
					return onSkip(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
