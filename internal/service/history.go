package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// History read/delete access for the remix viewer.
//
// The engine guarantees that once a record's status is terminal its logs are
// complete and final — the viewer can replay the transcript verbatim.
// Deletion is a user-initiated history management action; the engine itself
// never deletes records.

// ListHistory returns the user's remix history, newest first.
func (s *RemixService) ListHistory(ctx context.Context, userID string, limit, offset int) ([]model.RemixJob, error) {
	jobs, err := s.remixes.ListByUser(ctx, userID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service/remix: listing history: %w", err)
	}

	return jobs, nil
}

// GetHistory returns one history record (full transcript included), scoped
// to the owning user.
func (s *RemixService) GetHistory(ctx context.Context, userID, id string) (*model.RemixJob, error) {
	job, err := s.ownedJob(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// DeleteHistory removes one of the user's history records.
func (s *RemixService) DeleteHistory(ctx context.Context, userID, id string) error {
	if _, err := s.ownedJob(ctx, userID, id); err != nil {
		return err
	}

	if err := s.remixes.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("remix history record deleted",
		slog.String("remixID", id),
		slog.String("userID", userID),
	)

	return nil
}

func (s *RemixService) ownedJob(ctx context.Context, userID, id string) (*model.RemixJob, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "remix ID is required")
	}

	job, err := s.remixes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		// NotFound, not Forbidden — don't confirm the record exists.
		return nil, apperror.NotFound("remix", id)
	}

	return job, nil
}
