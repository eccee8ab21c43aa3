package ads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// RankingService orders eligible first-party ads by a recency-weighted CTR
// score and returns the best candidate that clears all frequency caps.
type RankingService struct {
	inventory storage.AdRepo
	stats     storage.StatStore
	caps      CapEvaluator

	maxCandidates          int
	minTrailingImpressions int64
	trailingWindowDays     int

	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRankingService(inventory storage.AdRepo, stats storage.StatStore, caps CapEvaluator, cfg config.AdsConfig, m *metrics.Metrics, logger *zap.Logger) *RankingService {
	return &RankingService{
		inventory:              inventory,
		stats:                  stats,
		caps:                   caps,
		maxCandidates:          cfg.MaxCandidates,
		minTrailingImpressions: cfg.MinTrailingImpressions,
		trailingWindowDays:     cfg.TrailingWindowDays,
		metrics:                m,
		logger:                 logger,
	}
}

type scoredAd struct {
	ad    *models.Ad
	score float64
}

// Rank returns the winning ad for the context, or (nil, nil) when nothing
// eligible clears the caps. That empty outcome is normal and moves the
// waterfall on; only storage errors bubble up.
func (s *RankingService) Rank(ctx context.Context, tc *models.TargetingContext) (*models.Ad, error) {
	eligible, err := s.inventory.ListEligible(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible ads: %w", err)
	}
	s.metrics.RecordEligibleAds(len(eligible))
	if len(eligible) == 0 {
		return nil, nil
	}

	candidates, err := s.score(ctx, eligible)
	if err != nil {
		return nil, err
	}

	// Score descending, then newest creation first. The creation tie-break
	// also orders the whole zero-score cold-start tail.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ad.CreatedAt.After(candidates[j].ad.CreatedAt)
	})

	if len(candidates) > s.maxCandidates {
		candidates = candidates[:s.maxCandidates]
	}

	for _, cand := range candidates {
		ok, err := s.passesCaps(ctx, tc.UserID, cand.ad)
		if err != nil {
			return nil, err
		}
		if ok {
			return cand.ad, nil
		}
	}
	return nil, nil
}

// score attaches the ranking score to every eligible ad: the most recent
// day's CTR within the trailing window, but only once the window holds
// enough impressions to trust it. Thin history scores zero.
func (s *RankingService) score(ctx context.Context, eligible []*models.Ad) ([]scoredAd, error) {
	ids := make([]string, len(eligible))
	for i, ad := range eligible {
		ids[i] = ad.ID
	}

	since := models.StatDateOf(time.Now().AddDate(0, 0, -(s.trailingWindowDays - 1)))
	statsByAd, err := s.stats.ListRecent(ctx, ids, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranking stats: %w", err)
	}

	candidates := make([]scoredAd, len(eligible))
	for i, ad := range eligible {
		rows := statsByAd[ad.ID]

		var trailing int64
		for _, st := range rows {
			trailing += st.Impressions
		}

		var score float64
		if trailing >= s.minTrailingImpressions && len(rows) > 0 {
			score = rows[0].CTR
		}
		candidates[i] = scoredAd{ad: ad, score: score}
	}
	return candidates, nil
}

// passesCaps runs the three cap checks in order, skipping the candidate on
// the first failure. A missing campaign row drops the candidate instead of
// failing the pass.
func (s *RankingService) passesCaps(ctx context.Context, userID string, ad *models.Ad) (bool, error) {
	ok, err := s.caps.CanShowAd(ctx, userID, ad.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.rejectCandidate(ad.ID, "ad_views")
		return false, nil
	}

	ok, err = s.caps.CanRepeatAd(ctx, userID, ad.ID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.rejectCandidate(ad.ID, "repeat_interval")
		return false, nil
	}

	advertiserID, err := s.inventory.GetAdvertiserID(ctx, ad.CampaignID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("campaign missing for eligible ad",
			zap.String("ad_id", ad.ID),
			zap.String("campaign_id", ad.CampaignID))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err = s.caps.CanShowAdvertiser(ctx, userID, advertiserID)
	if err != nil {
		return false, err
	}
	if !ok {
		s.rejectCandidate(ad.ID, "advertiser_views")
		return false, nil
	}
	return true, nil
}

func (s *RankingService) rejectCandidate(adID, check string) {
	s.metrics.RecordCapRejection(check)
	s.logger.Debug("candidate blocked by frequency cap",
		zap.String("ad_id", adID),
		zap.String("check", check))
}
