package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/internal/listing"
	"github.com/diagnosis/ukrbe-market/pkg/events"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/domain"
	"github.com/diagnosis/ukrbe-market/services/backend/internal/repository"
)

type ListingService interface {
	List(ctx context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error)
	Create(ctx context.Context, d listing.Domain, actor string, req *domain.ListingRequest) (*listing.Row, error)
	Update(ctx context.Context, d listing.Domain, actor, id string, req *domain.ListingRequest) (*listing.Row, error)
	// Delete succeeds for ids that do not exist.
	Delete(ctx context.Context, d listing.Domain, actor, id string) error
}

type listingService struct {
	repo     repository.ListingRepository
	eventBus events.Publisher
}

func NewListingService(repo repository.ListingRepository, eventBus events.Publisher) ListingService {
	return &listingService{repo: repo, eventBus: eventBus}
}

func (s *listingService) List(ctx context.Context, d listing.Domain, f listing.Filter) ([]listing.Row, error) {
	rows, err := s.repo.List(ctx, d, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d, err)
	}
	return rows, nil
}

func (s *listingService) Create(ctx context.Context, d listing.Domain, actor string, req *domain.ListingRequest) (*listing.Row, error) {
	if actor == "" {
		return nil, apperr.Unauthorized("Sign in or send a device id to post a listing")
	}

	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	row := req.Row
	row.ID = ""
	row.UserID = actor

	created, err := s.repo.Insert(ctx, d, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.publish(ctx, d, events.ActionInserted, created)
	return created, nil
}

func (s *listingService) Update(ctx context.Context, d listing.Domain, actor, id string, req *domain.ListingRequest) (*listing.Row, error) {
	if actor == "" {
		return nil, apperr.Unauthorized("Sign in to edit listings")
	}
	if !listing.IsRemoteID(id) {
		return nil, apperr.NotFound("Listing not found")
	}

	// Normalize and validate
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	existing, err := s.repo.Get(ctx, d, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if existing == nil {
		return nil, apperr.NotFound("Listing not found")
	}
	if existing.UserID != actor {
		return nil, apperr.Forbidden("Only the owner can edit this listing")
	}

	row := req.Row
	row.ID = id
	row.UserID = actor

	updated, err := s.repo.Update(ctx, d, row)
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("Listing not found")
	}

	s.publish(ctx, d, events.ActionUpdated, updated)
	return updated, nil
}

func (s *listingService) Delete(ctx context.Context, d listing.Domain, actor, id string) error {
	if actor == "" {
		return apperr.Unauthorized("Sign in to delete listings")
	}
	if !listing.IsRemoteID(id) {
		return nil
	}

	existing, err := s.repo.Get(ctx, d, id)
	if err != nil {
		return fmt.Errorf("failed to get listing: %w", err)
	}
	if existing == nil {
		return nil
	}
	if existing.UserID != actor {
		return apperr.Forbidden("Only the owner can delete this listing")
	}

	removed, err := s.repo.Delete(ctx, d, id, actor)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if removed {
		s.publish(ctx, d, events.ActionDeleted, existing)
	}
	return nil
}

func (s *listingService) publish(ctx context.Context, d listing.Domain, action string, row *listing.Row) {
	evt := events.ListingChangedEvent{
		Domain:    string(d),
		Action:    action,
		ListingID: row.ID,
		UserID:    row.UserID,
		ChangedAt: time.Now().UTC(),
	}
	if err := s.eventBus.Publish(ctx, events.ListingSubject(string(d), action), evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish listing event", "error", err, "listing_id", row.ID)
	}
}
