// Package history selects the bounded slice of a character's timeline that is
// replayed to the remote API on every turn.
package history

import (
	"context"

	"companion-chat/backend/internal/gateway"
	"companion-chat/backend/internal/models"
)

// DefaultWindow is how many trailing messages are replayed when no window is configured
const DefaultWindow = 100

// MessageLister is the read side of the message store the assembler needs
type MessageLister interface {
	ListByCharacter(ctx context.Context, characterID uint, limit int) ([]models.Message, error)
}

// Assembler reads history; it never writes
type Assembler struct {
	Messages MessageLister
	Window   int
}

func NewAssembler(messages MessageLister, window int) *Assembler {
	return &Assembler{Messages: messages, Window: window}
}

// Assemble returns the whole timeline if it fits the window, otherwise the
// last Window messages. Either way the result is in chronological order.
func (a *Assembler) Assemble(ctx context.Context, characterID uint) ([]models.Message, error) {
	window := a.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return a.Messages.ListByCharacter(ctx, characterID, window)
}

// ToTurns projects stored messages onto the remote API's turn shape
func ToTurns(messages []models.Message) []gateway.Turn {
	turns := make([]gateway.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, gateway.Turn{Name: m.SpeakerName, Content: m.Content})
	}
	return turns
}
