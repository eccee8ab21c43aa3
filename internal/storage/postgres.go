package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atharv404/kumele-ads/internal/models"
)

// =============================================
// POSTGRES AD INVENTORY
// =============================================

type PostgresAdRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAdRepo(pool *pgxpool.Pool) *PostgresAdRepo {
	return &PostgresAdRepo{pool: pool}
}

const adColumns = `
	a.id, a.campaign_id, a.title, a.body, a.media_url, a.destination,
	a.status, a.target_languages, a.target_age_min, a.target_age_max,
	a.created_at, a.updated_at`

func (r *PostgresAdRepo) ListEligible(ctx context.Context, tc *models.TargetingContext) ([]*models.Ad, error) {
	today := models.StatDateOf(time.Now())

	rows, err := r.pool.Query(ctx, `
		SELECT`+adColumns+`
		FROM ads a
		JOIN campaigns c ON c.id = a.campaign_id
		WHERE a.status = 'approved'
		  AND c.status = 'active'
		  AND (a.target_languages IS NULL
		       OR cardinality(a.target_languages) = 0
		       OR $1 = ANY(a.target_languages))
		  AND ($2::int IS NULL OR a.target_age_min IS NULL OR a.target_age_min <= $2)
		  AND ($2::int IS NULL OR a.target_age_max IS NULL OR a.target_age_max >= $2)
		  AND (c.daily_impression_cap IS NULL OR c.daily_impression_cap > COALESCE((
		        SELECT SUM(s.impressions)
		        FROM ad_daily_stats s
		        JOIN ads ca ON ca.id = s.ad_id
		        WHERE ca.campaign_id = c.id AND s.stat_date = $3::date
		      ), 0))
	`, tc.Language, tc.Age, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible ads: %w", err)
	}
	defer rows.Close()

	return scanAds(rows)
}

func (r *PostgresAdRepo) GetByID(ctx context.Context, id string) (*models.Ad, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+adColumns+`
		FROM ads a WHERE a.id = $1
	`, id)

	a, err := scanAd(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}
	return a, nil
}

func (r *PostgresAdRepo) GetServableByIDs(ctx context.Context, ids []string) ([]*models.Ad, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+adColumns+`
		FROM ads a
		JOIN campaigns c ON c.id = a.campaign_id
		WHERE a.id = ANY($1) AND a.status = 'approved' AND c.status = 'active'
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get servable ads: %w", err)
	}
	defer rows.Close()

	return scanAds(rows)
}

func (r *PostgresAdRepo) GetAdvertiserID(ctx context.Context, campaignID string) (string, error) {
	var advertiserID string
	err := r.pool.QueryRow(ctx, `
		SELECT advertiser_id FROM campaigns WHERE id = $1
	`, campaignID).Scan(&advertiserID)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get advertiser for campaign: %w", err)
	}
	return advertiserID, nil
}

func scanAds(rows pgx.Rows) ([]*models.Ad, error) {
	var ads []*models.Ad
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	return ads, rows.Err()
}

func scanAd(row pgx.Row) (*models.Ad, error) {
	var a models.Ad
	err := row.Scan(
		&a.ID, &a.CampaignID, &a.Creative.Title, &a.Creative.Body,
		&a.Creative.MediaURL, &a.Destination, &a.Status,
		&a.TargetLanguages, &a.TargetAgeMin, &a.TargetAgeMax,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// =============================================
// POSTGRES PROFILES
// =============================================

type PostgresProfileStore struct {
	pool *pgxpool.Pool
}

func NewPostgresProfileStore(pool *pgxpool.Pool) *PostgresProfileStore {
	return &PostgresProfileStore{pool: pool}
}

func (s *PostgresProfileStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(location, ''), COALESCE(language, ''),
		       date_of_birth, COALESCE(hobbies, '{}'), updated_at
		FROM user_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Location, &p.Language, &p.DateOfBirth, &p.Hobbies, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// =============================================
// POSTGRES APP CONFIG
// =============================================

type PostgresConfigStore struct {
	pool *pgxpool.Pool
}

func NewPostgresConfigStore(pool *pgxpool.Pool) *PostgresConfigStore {
	return &PostgresConfigStore{pool: pool}
}

func (s *PostgresConfigStore) GetFlag(ctx context.Context, name string) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx, `
		SELECT enabled FROM feature_flags WHERE name = $1
	`, name).Scan(&enabled)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get feature flag: %w", err)
	}
	return enabled, nil
}

func (s *PostgresConfigStore) GetAdNetworkConfig(ctx context.Context, name string) (*models.AdNetworkConfig, error) {
	var (
		cfg     models.AdNetworkConfig
		unitIDs []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, enabled, unit_ids, priority, updated_at
		FROM ad_configs WHERE name = $1
	`, name).Scan(&cfg.Name, &cfg.Enabled, &unitIDs, &cfg.Priority, &cfg.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad network config: %w", err)
	}

	if len(unitIDs) > 0 {
		if err := json.Unmarshal(unitIDs, &cfg.UnitIDs); err != nil {
			return nil, fmt.Errorf("failed to decode unit ids: %w", err)
		}
	}
	return &cfg, nil
}
