// Package records keeps the win/loss history of battle participants.
package records

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/ema-battle/core/session"
)

var ErrNotFound = errors.New("participant record not found")

// Record is the persisted history of one participant.
type Record struct {
	Name      string    `json:"name"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r Record) Participant() session.Participant {
	return session.Participant{Name: r.Name, Wins: r.Wins, Losses: r.Losses}
}

// Store is implemented by every record backend.
type Store interface {
	RecordResult(ctx context.Context, winner, loser string) error
	Get(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// Key normalizes a participant name for lookups. Names match
// case-insensitively and ignore surrounding whitespace.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateResult checks the names passed to RecordResult.
func ValidateResult(winner, loser string) error {
	if Key(winner) == "" {
		return fmt.Errorf("winner name is required")
	}
	if Key(loser) == "" {
		return fmt.Errorf("loser name is required")
	}
	if Key(winner) == Key(loser) {
		return fmt.Errorf("winner and loser must differ: %q", winner)
	}
	return nil
}

// SortStandings orders records by wins descending, then losses ascending,
// then name.
func SortStandings(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Wins != b.Wins:
			return b.Wins - a.Wins
		case a.Losses != b.Losses:
			return a.Losses - b.Losses
		default:
			return strings.Compare(Key(a.Name), Key(b.Name))
		}
	})
}

// Lookup returns the participant for name, with an empty history when the
// store has never seen them.
func Lookup(ctx context.Context, store Store, name string) (session.Participant, error) {
	name = strings.TrimSpace(name)
	if store == nil {
		return session.Participant{Name: name}, nil
	}
	record, err := store.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return session.Participant{Name: name}, nil
	}
	if err != nil {
		return session.Participant{}, fmt.Errorf("lookup %q: %w", name, err)
	}
	participant := record.Participant()
	participant.Name = name
	return participant, nil
}
