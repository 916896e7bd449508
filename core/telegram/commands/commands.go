package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// StaffOnly restricts the command to registered staff of any role.
	StaffOnly bool
	// AdminOnly restricts the command to staff holding the admin role.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}
