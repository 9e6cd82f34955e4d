package services

import (
	"context"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/types"
)

type FeedbackService interface {
	Submit(ctx context.Context, req *types.FeedbackRequest) (*types.Feedback, error)
}

type feedbackService struct {
	users    repos.UserRepo
	feedback repos.FeedbackRepo
	log      *logger.Logger
}

func NewFeedbackService(users repos.UserRepo, feedback repos.FeedbackRepo, baseLog *logger.Logger) FeedbackService {
	return &feedbackService{
		users:    users,
		feedback: feedback,
		log:      baseLog.With("service", "FeedbackService"),
	}
}

func (s *feedbackService) Submit(ctx context.Context, req *types.FeedbackRequest) (*types.Feedback, error) {
	user, err := s.users.GetByIDAndTenant(ctx, nil, req.UserID, req.TenantID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	row := &types.Feedback{
		UserID:  req.UserID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	return s.feedback.Create(ctx, nil, row)
}
