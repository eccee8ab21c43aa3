package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/ads"
	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/database"
	"github.com/atharv404/kumele-ads/internal/geo"
	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// Dependencies holds all external dependencies for the server. DB, Redis,
// Archive and Geo are optional; the server degrades tier by tier when they
// are absent (in-memory stores, store-backed caps, no archive, no location
// enrichment).
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Archive ads.EventArchiver
	Geo     geo.Provider
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the decision-engine services.
type Server struct {
	decisionService *ads.DecisionService
	eventService    *ads.EventService
	statStore       storage.StatStore
	db              *database.PostgresDB
	redis           *database.RedisDB
	logger          *zap.Logger
	config          *config.Config
	metrics         *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories
	var (
		adRepo    storage.AdRepo
		profiles  storage.ProfileStore
		events    storage.EventStore
		stats     storage.StatStore
		adConfigs storage.ConfigStore
	)

	if deps.DB != nil {
		adRepo = storage.NewPostgresAdRepo(deps.DB.Pool)
		profiles = storage.NewPostgresProfileStore(deps.DB.Pool)
		events = storage.NewPostgresEventStore(deps.DB.Pool)
		stats = storage.NewPostgresStatStore(deps.DB.Pool)
		adConfigs = storage.NewPostgresConfigStore(deps.DB.Pool)
	} else {
		memStats := storage.NewInMemoryStatStore()
		memRepo := storage.NewInMemoryAdRepo(memStats)
		adRepo = memRepo
		profiles = storage.NewInMemoryProfileStore()
		events = storage.NewInMemoryEventStore(memRepo)
		stats = memStats
		adConfigs = storage.NewInMemoryConfigStore()
	}

	// Frequency caps: Redis counters when available, event-store queries
	// otherwise. Only the Redis evaluator records views.
	policy := ads.CapPolicyFromConfig(deps.Config.Ads)
	var capEval ads.CapEvaluator
	var capRecorder ads.CapRecorder
	if deps.Redis != nil {
		rc := ads.NewRedisCapEvaluator(deps.Redis.Client, policy)
		capEval = rc
		capRecorder = rc
	} else {
		capEval = ads.NewStoreCapEvaluator(events, policy)
	}

	// Initialize services
	profileSvc := ads.NewProfileService(profiles, deps.Geo, deps.Metrics, deps.Logger)
	rankingSvc := ads.NewRankingService(adRepo, stats, capEval, deps.Config.Ads, deps.Metrics, deps.Logger)
	rankerClient := ads.NewRankerClient(deps.Config.Ads.RankerURL, deps.Config.Ads.RankerTimeout)
	networkSvc := ads.NewNetworkService(adConfigs, deps.Config.Ads.AdMobUnitID, deps.Logger)
	decisionSvc := ads.NewDecisionService(profileSvc, rankingSvc, rankerClient, networkSvc, adRepo, deps.Metrics, deps.Logger)
	eventSvc := ads.NewEventService(events, stats, adRepo, capRecorder, deps.Archive, deps.Metrics, deps.Logger)

	s := &Server{
		decisionService: decisionSvc,
		eventService:    eventSvc,
		statStore:       stats,
		db:              deps.DB,
		redis:           deps.Redis,
		logger:          deps.Logger,
		config:          deps.Config,
		metrics:         deps.Metrics,
	}

	return s.routes()
}

// routes registers all handlers on a fresh mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health and readiness
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics
	if s.config.Metrics.Enabled {
		mux.Handle(s.config.Metrics.Path, metrics.Handler())
	}

	// Decision engine
	mux.HandleFunc("/api/v1/ads/decision", s.handleDecision)

	// Event tracking
	mux.HandleFunc("/api/v1/ads/events", s.handleTrackEvent)

	// Aggregated stats
	mux.HandleFunc("/api/v1/ads/stats", s.handleAdStats)

	return mux
}

// ---- Health & Readiness ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("dependency", "postgres"), zap.Error(err))
			s.errorResponse(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("dependency", "redis"), zap.Error(err))
			s.errorResponse(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	s.jsonResponse(w, map[string]string{"status": "ready"})
}

// ---- Ad Decision ----

type decisionRequest struct {
	UserID    string   `json:"user_id"`
	Placement string   `json:"placement"`
	Location  string   `json:"location,omitempty"`
	Language  string   `json:"language,omitempty"`
	Hobbies   []string `json:"hobbies,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Placement == "" {
		s.errorResponse(w, "user_id and placement are required", http.StatusBadRequest)
		return
	}

	decision, err := s.decisionService.SelectAd(r.Context(), ads.SelectAdRequest{
		UserID:    req.UserID,
		Placement: req.Placement,
		Overrides: ads.Overrides{
			Location: req.Location,
			Language: req.Language,
			Hobbies:  req.Hobbies,
			ClientIP: clientIP(r),
		},
		Limit: req.Limit,
	})
	if err != nil {
		s.logger.Error("ad selection failed",
			zap.String("user_id", req.UserID),
			zap.String("placement", req.Placement),
			zap.Error(err),
		)
		s.errorResponse(w, "failed to select ad", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, decision)
}

// ---- Event Tracking ----

type trackEventRequest struct {
	UserID       string `json:"user_id"`
	AdID         string `json:"ad_id"`
	CampaignID   string `json:"campaign_id,omitempty"`
	ImpressionID string `json:"impression_id"`
	EventType    string `json:"event_type"`
	Placement    string `json:"placement,omitempty"`
	HobbyContext string `json:"hobby_context,omitempty"`
}

// handleTrackEvent accepts tracking events. Past the identity checks the
// response is always 202: recording is best-effort and a storage problem
// must not bounce the client into retry loops.
func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.AdID == "" || req.ImpressionID == "" {
		s.errorResponse(w, "user_id, ad_id and impression_id are required", http.StatusBadRequest)
		return
	}

	s.eventService.RecordEvent(r.Context(), ads.RecordEventRequest{
		UserID:       req.UserID,
		AdID:         req.AdID,
		CampaignID:   req.CampaignID,
		ImpressionID: req.ImpressionID,
		EventType:    models.EventType(req.EventType),
		Placement:    req.Placement,
		HobbyContext: req.HobbyContext,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// ---- Aggregated Stats ----

const maxStatsDays = 90

type adStatsResponse struct {
	AdID  string                `json:"ad_id"`
	Days  int                   `json:"days"`
	Stats []*models.AdDailyStat `json:"stats"`
}

func (s *Server) handleAdStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	adID := r.URL.Query().Get("ad_id")
	if adID == "" {
		s.errorResponse(w, "ad_id required", http.StatusBadRequest)
		return
	}

	days := s.config.Ads.TrailingWindowDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		n, err := strconv.Atoi(daysStr)
		if err != nil || n < 1 {
			s.errorResponse(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}

	since := models.StatDateOf(time.Now().AddDate(0, 0, -(days - 1)))
	rows, err := s.statStore.ListRecent(r.Context(), []string{adID}, since)
	if err != nil {
		s.logger.Error("failed to load daily stats", zap.String("ad_id", adID), zap.Error(err))
		s.errorResponse(w, "failed to load stats", http.StatusInternalServerError)
		return
	}

	stats := rows[adID]
	if stats == nil {
		stats = []*models.AdDailyStat{}
	}

	s.jsonResponse(w, adStatsResponse{AdID: adID, Days: days, Stats: stats})
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// clientIP extracts the client IP, trusting forwarding headers set by the
// load balancer before falling back to the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
