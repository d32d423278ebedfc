package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/repository"
)

// EngagementService answers bulk count and liked-state lookups, used by
// clients to resync after a realtime reconnect.
type EngagementService struct {
	likes  repository.LikeRepositoryInterface
	counts *CountService
}

func NewEngagementService(likes repository.LikeRepositoryInterface, counts *CountService) *EngagementService {
	return &EngagementService{likes: likes, counts: counts}
}

// Records returns one record per id, in input order.
func (s *EngagementService) Records(ctx context.Context, kind models.EntityKind, ids []uuid.UUID, viewer *uuid.UUID) ([]models.EngagementRecord, error) {
	if kind != models.KindAsset && kind != models.KindComment {
		return nil, ErrInvalidKind
	}
	records := make([]models.EngagementRecord, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	counts, err := s.counts.Counts(ctx, kind, ids)
	if err != nil {
		return nil, err
	}
	liked := map[uuid.UUID]bool{}
	if viewer != nil && *viewer != uuid.Nil {
		liked, err = s.likes.LikedBy(ctx, kind, *viewer, ids)
		if err != nil {
			return nil, err
		}
	}

	for i, id := range ids {
		records[i] = models.EngagementRecord{
			EntityID:       id.String(),
			LikeCount:      counts[id],
			ViewerHasLiked: liked[id],
		}
	}
	return records, nil
}
