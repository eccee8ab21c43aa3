package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// SelectAdRequest is one ad request for one placement.
type SelectAdRequest struct {
	UserID    string
	Placement string
	Overrides Overrides

	// Limit is how many candidates to request from the personalized ranker.
	// One ad is returned either way; zero means 1.
	Limit int
}

// DecisionService runs the selection waterfall: personalized ranker first,
// deterministic ranking second, the ad network third, nothing last. The
// personalized tier is advisory and may fail or time out without affecting
// the decision; the deterministic tier is authoritative and its storage
// errors propagate.
type DecisionService struct {
	profiles  *ProfileService
	ranking   *RankingService
	ranker    *RankerClient
	network   *NetworkService
	inventory storage.AdRepo
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewDecisionService(profiles *ProfileService, ranking *RankingService, ranker *RankerClient, network *NetworkService, inventory storage.AdRepo, m *metrics.Metrics, logger *zap.Logger) *DecisionService {
	return &DecisionService{
		profiles:  profiles,
		ranking:   ranking,
		ranker:    ranker,
		network:   network,
		inventory: inventory,
		metrics:   m,
		logger:    logger,
	}
}

// SelectAd resolves the user's targeting context and walks the waterfall.
// An unknown user yields a NONE decision, not an error. The only errors
// returned are storage failures from the deterministic tier.
func (s *DecisionService) SelectAd(ctx context.Context, req SelectAdRequest) (*models.Decision, error) {
	start := time.Now()
	decision := &models.Decision{
		Placement: req.Placement,
		Source:    models.DecisionSourceNone,
	}

	tc, err := s.profiles.Resolve(ctx, req.UserID, req.Overrides)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("no profile for user, serving nothing",
				zap.String("user_id", req.UserID),
				zap.String("placement", req.Placement))
			return s.finish(decision, start), nil
		}
		return nil, fmt.Errorf("failed to resolve targeting context: %w", err)
	}

	if s.ranker != nil && s.ranker.Configured() {
		if ad := s.tryPersonalized(ctx, req, tc); ad != nil {
			decision.Source = models.DecisionSourcePersonalized
			decision.Strict = true
			decision.Ad = ad
			return s.finish(decision, start), nil
		}
	}

	ad, err := s.ranking.Rank(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("deterministic ranking failed: %w", err)
	}
	if ad != nil {
		decision.Source = models.DecisionSourceDeterministic
		decision.Strict = true
		decision.Ad = ad
		return s.finish(decision, start), nil
	}

	if s.network != nil && s.network.Enabled(ctx) {
		decision.Source = models.DecisionSourceNetwork
		decision.NetworkContext = s.network.BuildContext(ctx, req.Placement, tc.Location)
		return s.finish(decision, start), nil
	}

	return s.finish(decision, start), nil
}

func (s *DecisionService) finish(d *models.Decision, start time.Time) *models.Decision {
	s.metrics.RecordDecision(string(d.Source), d.Placement, time.Since(start))
	return d
}

// tryPersonalized runs the time-boxed ranker call and resolves its answer
// against the inventory, keeping only ads that are still servable. Every
// failure path returns nil so the caller falls through to the next tier.
func (s *DecisionService) tryPersonalized(ctx context.Context, req SelectAdRequest, tc *models.TargetingContext) *models.Ad {
	limit := req.Limit
	if limit <= 0 {
		limit = 1
	}

	ids, err := s.ranker.Rank(ctx, req.UserID, req.Placement, tc, limit)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.RecordRankerOutcome(outcome)
		s.logger.Warn("personalized ranker unavailable, falling back",
			zap.String("user_id", req.UserID),
			zap.String("outcome", outcome),
			zap.Error(err))
		return nil
	}
	if len(ids) == 0 {
		s.metrics.RecordRankerOutcome("empty")
		return nil
	}

	ads, err := s.inventory.GetServableByIDs(ctx, ids)
	if err != nil {
		// The deterministic tier reads the same store and will surface a
		// real outage; here it only means the advisory tier yields.
		s.metrics.RecordRankerOutcome("error")
		s.logger.Warn("failed to resolve ranked ads, falling back", zap.Error(err))
		return nil
	}

	byID := make(map[string]*models.Ad, len(ads))
	for _, ad := range ads {
		byID[ad.ID] = ad
	}
	for _, id := range ids {
		if ad, ok := byID[id]; ok {
			s.metrics.RecordRankerOutcome("ok")
			return ad
		}
	}

	s.metrics.RecordRankerOutcome("empty")
	s.logger.Debug("ranker returned no servable ads",
		zap.String("user_id", req.UserID),
		zap.Int("ranked", len(ids)))
	return nil
}
