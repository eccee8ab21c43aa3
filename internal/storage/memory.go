package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atharv404/kumele-ads/internal/models"
)

// =============================================
// IN-MEMORY AD INVENTORY
// =============================================

// InMemoryAdRepo keeps the ad inventory in process memory. Used when
// PostgreSQL is not configured, and by tests.
type InMemoryAdRepo struct {
	mu            sync.RWMutex
	advertisers   map[string]*models.Advertiser
	campaigns     map[string]*models.Campaign
	ads           map[string]*models.Ad
	adsByCampaign map[string][]string

	// stats backs the campaign daily-cap filter; nil disables the filter.
	stats *InMemoryStatStore
}

func NewInMemoryAdRepo(stats *InMemoryStatStore) *InMemoryAdRepo {
	return &InMemoryAdRepo{
		advertisers:   make(map[string]*models.Advertiser),
		campaigns:     make(map[string]*models.Campaign),
		ads:           make(map[string]*models.Ad),
		adsByCampaign: make(map[string][]string),
		stats:         stats,
	}
}

func (r *InMemoryAdRepo) PutAdvertiser(a *models.Advertiser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.advertisers[a.ID] = &cp
}

func (r *InMemoryAdRepo) PutCampaign(c *models.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
}

func (r *InMemoryAdRepo) PutAd(a *models.Ad) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ads[a.ID]; !exists {
		r.adsByCampaign[a.CampaignID] = append(r.adsByCampaign[a.CampaignID], a.ID)
	}
	cp := *a
	r.ads[a.ID] = &cp
}

func (r *InMemoryAdRepo) ListEligible(ctx context.Context, tc *models.TargetingContext) ([]*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	today := models.StatDateOf(time.Now())
	capOK := make(map[string]bool)

	res := make([]*models.Ad, 0)
	for _, ad := range r.ads {
		if !ad.Approved() {
			continue
		}
		c, ok := r.campaigns[ad.CampaignID]
		if !ok || !c.IsActive() {
			continue
		}
		if !ad.MatchesLanguage(tc.Language) || !ad.MatchesAge(tc.Age) {
			continue
		}
		if c.DailyImpressionCap != nil {
			allowed, checked := capOK[c.ID]
			if !checked {
				allowed = r.underDailyCap(ctx, c, today)
				capOK[c.ID] = allowed
			}
			if !allowed {
				continue
			}
		}
		res = append(res, ad)
	}
	return res, nil
}

// underDailyCap sums today's impressions across the campaign's ads.
// Callers hold at least the read lock.
func (r *InMemoryAdRepo) underDailyCap(ctx context.Context, c *models.Campaign, today string) bool {
	if r.stats == nil {
		return true
	}
	ids := r.adsByCampaign[c.ID]
	if len(ids) == 0 {
		return true
	}
	rows, err := r.stats.ListRecent(ctx, ids, today)
	if err != nil {
		return true
	}
	var total int64
	for _, stats := range rows {
		for _, st := range stats {
			total += st.Impressions
		}
	}
	return total < *c.DailyImpressionCap
}

func (r *InMemoryAdRepo) GetByID(ctx context.Context, id string) (*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.ads[id]; ok {
		return a, nil
	}
	return nil, nil
}

func (r *InMemoryAdRepo) GetServableByIDs(ctx context.Context, ids []string) ([]*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Ad, 0, len(ids))
	for _, id := range ids {
		a, ok := r.ads[id]
		if !ok || !a.Approved() {
			continue
		}
		c, ok := r.campaigns[a.CampaignID]
		if !ok || !c.IsActive() {
			continue
		}
		res = append(res, a)
	}
	return res, nil
}

func (r *InMemoryAdRepo) GetAdvertiserID(ctx context.Context, campaignID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.campaigns[campaignID]; ok {
		return c.AdvertiserID, nil
	}
	return "", ErrNotFound
}

// =============================================
// IN-MEMORY PROFILES
// =============================================

// InMemoryProfileStore stores user profiles in memory.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.UserProfile
}

func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{
		profiles: make(map[string]*models.UserProfile),
	}
}

func (s *InMemoryProfileStore) PutProfile(p *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

func (s *InMemoryProfileStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

// =============================================
// IN-MEMORY EVENT STORE
// =============================================

// InMemoryEventStore stores interaction events in memory. The inventory
// reference resolves campaign owners for the advertiser cap query.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	keys   map[string]struct{}
	byUser map[string][]*models.AdEvent

	inventory *InMemoryAdRepo
}

func NewInMemoryEventStore(inventory *InMemoryAdRepo) *InMemoryEventStore {
	return &InMemoryEventStore{
		keys:      make(map[string]struct{}),
		byUser:    make(map[string][]*models.AdEvent),
		inventory: inventory,
	}
}

func (s *InMemoryEventStore) InsertEvent(ctx context.Context, ev *models.AdEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ev.DedupKey()
	if _, dup := s.keys[key]; dup {
		return false, nil
	}
	s.keys[key] = struct{}{}
	cp := *ev
	s.byUser[ev.UserID] = append(s.byUser[ev.UserID], &cp)
	return true, nil
}

func (s *InMemoryEventStore) CountUserAdEvents(ctx context.Context, userID, adID string, et models.EventType, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, ev := range s.byUser[userID] {
		if ev.AdID == adID && ev.EventType == et && !ev.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryEventStore) LastUserAdEvent(ctx context.Context, userID, adID string, et models.EventType) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, ev := range s.byUser[userID] {
		if ev.AdID != adID || ev.EventType != et {
			continue
		}
		if last == nil || ev.CreatedAt.After(*last) {
			t := ev.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (s *InMemoryEventStore) CountUserAdvertiserEvents(ctx context.Context, userID, advertiserID string, et models.EventType, since time.Time) (int64, error) {
	s.mu.RLock()
	events := s.byUser[userID]
	s.mu.RUnlock()

	var n int64
	for _, ev := range events {
		if ev.EventType != et || ev.CreatedAt.Before(since) {
			continue
		}
		owner, err := s.inventory.GetAdvertiserID(ctx, ev.CampaignID)
		if err != nil {
			continue
		}
		if owner == advertiserID {
			n++
		}
	}
	return n, nil
}

// =============================================
// IN-MEMORY DAILY STATS
// =============================================

// InMemoryStatStore keeps daily rollups with one lock per (ad, date) row so
// concurrent events for different ads never serialize on each other.
type InMemoryStatStore struct {
	mu   sync.RWMutex
	rows map[string]*statRow
}

type statRow struct {
	mu   sync.Mutex
	stat models.AdDailyStat
}

func NewInMemoryStatStore() *InMemoryStatStore {
	return &InMemoryStatStore{
		rows: make(map[string]*statRow),
	}
}

func (s *InMemoryStatStore) ApplyEvent(ctx context.Context, adID, statDate string, et models.EventType) error {
	key := adID + "|" + statDate

	s.mu.RLock()
	row := s.rows[key]
	s.mu.RUnlock()

	if row == nil {
		s.mu.Lock()
		row = s.rows[key]
		if row == nil {
			row = &statRow{stat: models.AdDailyStat{AdID: adID, StatDate: statDate}}
			s.rows[key] = row
		}
		s.mu.Unlock()
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	switch et {
	case models.EventTypeView:
		row.stat.Impressions++
	case models.EventTypeClick:
		row.stat.Clicks++
	case models.EventTypeConversion:
		row.stat.Conversions++
	}

	if row.stat.Impressions > 0 {
		row.stat.CTR = float64(row.stat.Clicks) / float64(row.stat.Impressions)
	} else {
		row.stat.CTR = 0
	}
	if row.stat.Clicks > 0 {
		row.stat.ConversionRate = float64(row.stat.Conversions) / float64(row.stat.Clicks)
	} else {
		row.stat.ConversionRate = 0
	}
	row.stat.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStatStore) ListRecent(ctx context.Context, adIDs []string, since string) (map[string][]*models.AdDailyStat, error) {
	wanted := make(map[string]bool, len(adIDs))
	for _, id := range adIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	rows := make([]*statRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	res := make(map[string][]*models.AdDailyStat)
	for _, row := range rows {
		row.mu.Lock()
		st := row.stat
		row.mu.Unlock()
		if !wanted[st.AdID] || st.StatDate < since {
			continue
		}
		res[st.AdID] = append(res[st.AdID], &st)
	}
	for _, stats := range res {
		sort.Slice(stats, func(i, j int) bool {
			return stats[i].StatDate > stats[j].StatDate
		})
	}
	return res, nil
}

// =============================================
// IN-MEMORY APP CONFIG
// =============================================

// InMemoryConfigStore stores feature flags and network configs in memory.
type InMemoryConfigStore struct {
	mu       sync.RWMutex
	flags    map[string]bool
	networks map[string]*models.AdNetworkConfig
}

func NewInMemoryConfigStore() *InMemoryConfigStore {
	return &InMemoryConfigStore{
		flags:    make(map[string]bool),
		networks: make(map[string]*models.AdNetworkConfig),
	}
}

func (s *InMemoryConfigStore) PutFlag(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = enabled
}

func (s *InMemoryConfigStore) PutAdNetworkConfig(cfg *models.AdNetworkConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.networks[cfg.Name] = &cp
}

func (s *InMemoryConfigStore) GetFlag(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[name], nil
}

func (s *InMemoryConfigStore) GetAdNetworkConfig(ctx context.Context, name string) (*models.AdNetworkConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.networks[name]; ok {
		return cfg, nil
	}
	return nil, nil
}
