package affinity

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection          = "users"
	establishmentsCollection = "establishments"
)

var errEstablishmentMissing = errors.New("establishment missing")

// FirestoreStore keeps membership as arrays on users/{uid} ("favorites",
// "likes") and adjusts the establishment counter in the same transaction.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func arrayField(kind Kind) string {
	if kind == KindLike {
		return "likes"
	}
	return "favorites"
}

func (s *FirestoreStore) Members(ctx context.Context, userID string, kind Kind) ([]string, error) {
	doc, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	return stringArray(doc, arrayField(kind)), nil
}

func (s *FirestoreStore) Add(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, true)
}

func (s *FirestoreStore) Remove(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, false)
}

func (s *FirestoreStore) mutate(ctx context.Context, userID string, kind Kind, establishmentID string, add bool) (Outcome, error) {
	userRef := s.client.Collection(usersCollection).Doc(userID)
	estRef := s.client.Collection(establishmentsCollection).Doc(establishmentID)
	field := arrayField(kind)
	counter := kind.CounterField()

	var outcome Outcome
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		outcome = OutcomeRefused

		estDoc, err := tx.Get(estRef)
		missing := status.Code(err) == codes.NotFound
		if missing && add {
			return errEstablishmentMissing
		}
		if err != nil && !missing {
			return err
		}

		userDoc, err := tx.Get(userRef)
		present := false
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			for _, id := range stringArray(userDoc, field) {
				if id == establishmentID {
					present = true
					break
				}
			}
		}

		if present == add {
			outcome = OutcomeUnchanged
			return nil
		}

		delta := 1
		var change interface{} = firestore.ArrayUnion(establishmentID)
		if !add {
			delta = -1
			change = firestore.ArrayRemove(establishmentID)
		}

		if err := tx.Set(userRef, map[string]interface{}{field: change}, firestore.MergeAll); err != nil {
			return err
		}
		outcome = OutcomeChanged

		// A dangling id is dropped without touching a counter that no longer exists.
		if missing {
			return nil
		}
		return tx.Update(estRef, []firestore.Update{
			{Path: counter, Value: max(0, intField(estDoc, counter)+delta)},
		})
	})

	if errors.Is(err, errEstablishmentMissing) {
		return OutcomeRefused, nil
	}
	if err != nil {
		return OutcomeRefused, fmt.Errorf("failed to update %s for user %s: %w", kind, userID, err)
	}
	return outcome, nil
}

func stringArray(doc *firestore.DocumentSnapshot, field string) []string {
	ids := []string{}
	v, err := doc.DataAt(field)
	if err != nil {
		return ids
	}
	raw, ok := v.([]interface{})
	if !ok {
		return ids
	}
	for _, item := range raw {
		if id, ok := item.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func intField(doc *firestore.DocumentSnapshot, field string) int {
	v, err := doc.DataAt(field)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
