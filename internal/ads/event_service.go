package ads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// EventArchiver receives accepted events for cold storage. Enqueue must not
// block; implementations drop events when their buffer is full.
type EventArchiver interface {
	Enqueue(e *models.AdEvent)
}

// RecordEventRequest is one tracking beacon from a client.
type RecordEventRequest struct {
	UserID       string
	AdID         string
	CampaignID   string
	ImpressionID string
	EventType    models.EventType
	Placement    string
	HobbyContext string
}

// EventService ingests tracking events: dedup on the identity tuple, then
// roll the daily stats and frequency counters forward. Recording is
// best-effort by contract. A lost event must never surface as a serving
// failure, so every error here ends at the log and a failure counter.
type EventService struct {
	events    storage.EventStore
	stats     storage.StatStore
	inventory storage.AdRepo
	caps      CapRecorder
	archive   EventArchiver
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewEventService creates the tracking pipeline. caps and archive may be nil
// when the Redis counters or the archive sink are not wired.
func NewEventService(events storage.EventStore, stats storage.StatStore, inventory storage.AdRepo, caps CapRecorder, archive EventArchiver, m *metrics.Metrics, logger *zap.Logger) *EventService {
	return &EventService{
		events:    events,
		stats:     stats,
		inventory: inventory,
		caps:      caps,
		archive:   archive,
		metrics:   m,
		logger:    logger,
	}
}

// RecordEvent validates, deduplicates and counts one event. A replay of the
// same (user, ad, type, impression) tuple is absorbed without touching the
// daily stats, so each impression contributes at most one view, one click
// and one conversion.
func (s *EventService) RecordEvent(ctx context.Context, req RecordEventRequest) {
	if !req.EventType.Valid() {
		s.metrics.RecordEventFailure("validate")
		s.logger.Warn("dropping event with unknown type",
			zap.String("event_type", string(req.EventType)),
			zap.String("ad_id", req.AdID))
		return
	}
	if req.UserID == "" || req.AdID == "" || req.ImpressionID == "" {
		s.metrics.RecordEventFailure("validate")
		s.logger.Warn("dropping event with missing identity fields",
			zap.String("user_id", req.UserID),
			zap.String("ad_id", req.AdID),
			zap.String("impression_id", req.ImpressionID))
		return
	}

	now := time.Now().UTC()
	event := &models.AdEvent{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		AdID:         req.AdID,
		CampaignID:   req.CampaignID,
		ImpressionID: req.ImpressionID,
		EventType:    req.EventType,
		Placement:    req.Placement,
		HobbyContext: req.HobbyContext,
		CreatedAt:    now,
	}
	if event.CampaignID == "" {
		// Older clients send only the ad id. Backfill so advertiser-level
		// caps still count this event; a miss here just weakens the cap.
		if ad, err := s.inventory.GetByID(ctx, event.AdID); err == nil && ad != nil {
			event.CampaignID = ad.CampaignID
		}
	}

	created, err := s.events.InsertEvent(ctx, event)
	if err != nil {
		s.metrics.RecordEventFailure("insert")
		s.logger.Error("failed to persist ad event",
			zap.String("user_id", event.UserID),
			zap.String("ad_id", event.AdID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
		return
	}
	if !created {
		s.metrics.RecordEvent(string(event.EventType), true)
		s.logger.Debug("duplicate ad event ignored",
			zap.String("user_id", event.UserID),
			zap.String("ad_id", event.AdID),
			zap.String("impression_id", event.ImpressionID))
		return
	}
	s.metrics.RecordEvent(string(event.EventType), false)

	if err := s.stats.ApplyEvent(ctx, event.AdID, models.StatDateOf(now), event.EventType); err != nil {
		s.metrics.RecordEventFailure("stats")
		s.logger.Error("failed to roll daily stats forward",
			zap.String("ad_id", event.AdID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
	}

	if event.EventType == models.EventTypeView && s.caps != nil {
		s.recordView(ctx, event, now)
	}

	if s.archive != nil {
		s.archive.Enqueue(event)
	}
}

// recordView advances the fast-path frequency counters after a fresh view.
// The event store remains the source of truth, so a counter write failure
// costs freshness, not correctness.
func (s *EventService) recordView(ctx context.Context, event *models.AdEvent, now time.Time) {
	advertiserID := ""
	if event.CampaignID != "" {
		id, err := s.inventory.GetAdvertiserID(ctx, event.CampaignID)
		if err == nil {
			advertiserID = id
		} else {
			s.logger.Debug("failed to resolve advertiser for view counter",
				zap.String("campaign_id", event.CampaignID),
				zap.Error(err))
		}
	}
	if err := s.caps.RecordView(ctx, event.UserID, event.AdID, advertiserID, now); err != nil {
		s.metrics.RecordEventFailure("caps")
		s.logger.Warn("failed to advance frequency counters",
			zap.String("user_id", event.UserID),
			zap.String("ad_id", event.AdID),
			zap.Error(err))
	}
}
