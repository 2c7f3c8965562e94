// Package affinity keeps per-user favorite and like membership and the
// optimistic toggles that mutate it.
package affinity

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindFavorite Kind = "favorite"
	KindLike     Kind = "like"
)

var (
	ErrUnknownKind     = errors.New("unknown affinity kind")
	ErrGuestUser       = errors.New("guest users cannot change favorites or likes")
	ErrToggleInFlight  = errors.New("toggle already in flight")
	ErrMutationRefused = errors.New("affinity mutation refused")
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFavorite, KindLike:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// CounterField names the establishment counter the server adjusts for a kind.
func (k Kind) CounterField() string {
	if k == KindLike {
		return "reviewCount"
	}
	return "favoritesCount"
}

// Outcome is what a store did with a mutation.
type Outcome int

const (
	// OutcomeRefused means the backend would not apply the mutation, for
	// example adding an establishment that no longer exists.
	OutcomeRefused Outcome = iota
	// OutcomeUnchanged means membership already had the requested value.
	// Counters are untouched.
	OutcomeUnchanged
	// OutcomeChanged means membership changed. Counters moved with it when
	// the establishment still exists.
	OutcomeChanged
)

// Store is the remote membership backend. Only Add can be refused: removing
// an id whose establishment is gone still drops the membership.
type Store interface {
	Members(ctx context.Context, userID string, kind Kind) ([]string, error)
	Add(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error)
	Remove(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error)
}
