package services

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"goldenbookAPI/internal/affinity"
	"goldenbookAPI/internal/catalog"
	"goldenbookAPI/internal/discovery"
	"goldenbookAPI/internal/types/establishment"
	"goldenbookAPI/internal/types/user"
)

const hydrateConcurrency = 8

type AffinityService struct {
	toggler   *affinity.Toggler
	catalog   *CatalogService
	discovery *DiscoveryService
}

func NewAffinityService(toggler *affinity.Toggler, catalogService *CatalogService, discoveryService *DiscoveryService) *AffinityService {
	return &AffinityService{
		toggler:   toggler,
		catalog:   catalogService,
		discovery: discoveryService,
	}
}

// Hydrate returns the establishments behind the user's ids, in id order.
// Ids the catalog no longer has are dropped with a warning.
func (s *AffinityService) Hydrate(ctx context.Context, p user.Principal, kind affinity.Kind) ([]establishment.EstablishmentResponse, error) {
	ids, err := s.toggler.Members(ctx, p, kind)
	if err != nil {
		return nil, err
	}

	found := make([]*establishment.Establishment, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			e, err := s.catalog.GetEstablishment(gctx, id)
			if errors.Is(err, catalog.ErrNotFound) {
				log.WithFields(log.Fields{
					"user": p.UserID,
					"kind": kind,
				}).Warnf("Affinity: %s no longer in catalog, dropped", id)
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = e
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]establishment.EstablishmentResponse, 0, len(found))
	for _, e := range found {
		if e != nil {
			out = append(out, e.Response())
		}
	}
	return out, nil
}

// SetMembership adds or removes one establishment. A committed like is
// mirrored into the referenced discovery session, if any.
func (s *AffinityService) SetMembership(ctx context.Context, p user.Principal, kind affinity.Kind, establishmentID string, member bool, sessionID string) (affinity.Toggle, error) {
	result, err := s.toggler.Set(ctx, p, kind, establishmentID, member)
	if err != nil {
		return result, err
	}

	if sessionID != "" && result.ReviewDelta != 0 {
		if err := s.discovery.ApplyReviewDelta(sessionID, establishmentID, result.ReviewDelta); err != nil {
			if !errors.Is(err, discovery.ErrSessionNotFound) {
				return result, err
			}
			log.Debugf("Affinity: session %s gone, review delta not applied", sessionID)
		}
	}
	return result, nil
}
