// Package gateway wraps outbound Telegram calls made outside update handlers,
// where no tele.Context exists (background resolvers and sweepers).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Gateway performs chat management and direct messaging against the Bot API.
type Gateway struct {
	bot *tele.Bot
}

// New wraps a connected bot.
func New(bot *tele.Bot) *Gateway {
	return &Gateway{bot: bot}
}

// SendMessage delivers a Markdown message to a user's private chat.
func (g *Gateway) SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error {
	return g.send(ctx, telegramID, text, markup...)
}

// SendToChat delivers a Markdown message to a group or staff chat.
func (g *Gateway) SendToChat(ctx context.Context, chatID int64, text string, markup ...*tele.ReplyMarkup) error {
	return g.send(ctx, chatID, text, markup...)
}

func (g *Gateway) send(ctx context.Context, recipientID int64, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	_, err := g.bot.Send(&tele.User{ID: recipientID}, text, opts)
	if err != nil {
		logger.Warn(ctx, "tg.gateway", "send.fail",
			slog.Int64("recipient_id", recipientID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("gateway send to %d: %w", recipientID, err)
	}
	return nil
}

// RemoveMember kicks a user out of a chat. Ban followed by unban lets the
// user rejoin later through a fresh invite link. When Telegram reports the
// chat migrated to a supergroup, the call is retried once against the new ID.
func (g *Gateway) RemoveMember(ctx context.Context, chatID, userID int64) error {
	target, err := g.ban(chatID, userID)
	if err != nil {
		logger.Warn(ctx, "tg.gateway", "member.remove.fail",
			slog.Int64("chat_id", chatID),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("gateway remove member %d from %d: %w", userID, chatID, err)
	}

	if err := g.bot.Unban(&tele.Chat{ID: target}, &tele.User{ID: userID}); err != nil {
		// The kick already happened; a failed unban only blocks rejoining.
		logger.Warn(ctx, "tg.gateway", "member.unban.fail",
			slog.Int64("chat_id", target),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "tg.gateway", "member.removed",
		slog.Int64("chat_id", target),
		slog.Int64("user_id", userID),
	)
	return nil
}

// ban returns the chat ID the ban finally landed on, following at most one
// supergroup migration.
func (g *Gateway) ban(chatID, userID int64) (int64, error) {
	member := &tele.ChatMember{User: &tele.User{ID: userID}}
	err := g.bot.Ban(&tele.Chat{ID: chatID}, member)
	if err == nil {
		return chatID, nil
	}

	var groupErr tele.GroupError
	if errors.As(err, &groupErr) && groupErr.MigratedTo != 0 {
		if err := g.bot.Ban(&tele.Chat{ID: groupErr.MigratedTo}, member); err != nil {
			return 0, err
		}
		return groupErr.MigratedTo, nil
	}
	return 0, err
}

// inviteRequest shapes a single-member invite expiring at the given time.
func inviteRequest(expiresAt time.Time) *tele.ChatInviteLink {
	return &tele.ChatInviteLink{
		MemberLimit:    1,
		ExpireUnixtime: expiresAt.Unix(),
	}
}

// CreateInvite issues a single-use invite link that expires at the given time.
func (g *Gateway) CreateInvite(ctx context.Context, chatID int64, expiresAt time.Time) (string, error) {
	link, err := g.bot.CreateInviteLink(&tele.Chat{ID: chatID}, inviteRequest(expiresAt))
	if err != nil {
		logger.Warn(ctx, "tg.gateway", "invite.create.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("gateway create invite for %d: %w", chatID, err)
	}

	logger.Debug(ctx, "tg.gateway", "invite.created",
		slog.Int64("chat_id", chatID),
		slog.Time("expires_at", expiresAt),
	)
	return link.InviteLink, nil
}
