package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atharv404/kumele-ads/internal/models"
)

// =============================================
// POSTGRES EVENT STORE
// =============================================

type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// InsertEvent relies on the unique index over (user_id, ad_id, event_type,
// impression_id): a replayed tuple hits DO NOTHING and reports no new row.
func (s *PostgresEventStore) InsertEvent(ctx context.Context, ev *models.AdEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ad_events (id, user_id, ad_id, campaign_id, impression_id,
		                       event_type, placement, hobby_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, ad_id, event_type, impression_id) DO NOTHING
	`, ev.ID, ev.UserID, ev.AdID, ev.CampaignID, ev.ImpressionID,
		ev.EventType, ev.Placement, ev.HobbyContext, ev.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresEventStore) CountUserAdEvents(ctx context.Context, userID, adID string, et models.EventType, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ad_events
		WHERE user_id = $1 AND ad_id = $2 AND event_type = $3 AND created_at >= $4
	`, userID, adID, et, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad events: %w", err)
	}
	return n, nil
}

func (s *PostgresEventStore) LastUserAdEvent(ctx context.Context, userID, adID string, et models.EventType) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT created_at FROM ad_events
		WHERE user_id = $1 AND ad_id = $2 AND event_type = $3
		ORDER BY created_at DESC LIMIT 1
	`, userID, adID, et).Scan(&t)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last ad event: %w", err)
	}
	return &t, nil
}

func (s *PostgresEventStore) CountUserAdvertiserEvents(ctx context.Context, userID, advertiserID string, et models.EventType, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ad_events e
		JOIN campaigns c ON c.id = e.campaign_id
		WHERE e.user_id = $1 AND c.advertiser_id = $2
		  AND e.event_type = $3 AND e.created_at >= $4
	`, userID, advertiserID, et, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count advertiser events: %w", err)
	}
	return n, nil
}

// =============================================
// POSTGRES DAILY STATS
// =============================================

type PostgresStatStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStatStore(pool *pgxpool.Pool) *PostgresStatStore {
	return &PostgresStatStore{pool: pool}
}

// ApplyEvent runs the increment and the rate recompute as one upsert
// statement, so concurrent events on the same (ad, date) row serialize on
// the row inside Postgres and no increment is ever lost.
func (s *PostgresStatStore) ApplyEvent(ctx context.Context, adID, statDate string, et models.EventType) error {
	var dImp, dClk, dCnv int64
	switch et {
	case models.EventTypeView:
		dImp = 1
	case models.EventTypeClick:
		dClk = 1
	case models.EventTypeConversion:
		dCnv = 1
	default:
		return fmt.Errorf("unknown event type %q", et)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_daily_stats (ad_id, stat_date, impressions, clicks, conversions, ctr, conversion_rate, updated_at)
		VALUES ($1, $2::date, $3, $4, $5,
		        CASE WHEN $3 > 0 THEN $4::float8 / $3 ELSE 0 END,
		        CASE WHEN $4 > 0 THEN $5::float8 / $4 ELSE 0 END,
		        now())
		ON CONFLICT (ad_id, stat_date) DO UPDATE SET
			impressions = ad_daily_stats.impressions + EXCLUDED.impressions,
			clicks      = ad_daily_stats.clicks + EXCLUDED.clicks,
			conversions = ad_daily_stats.conversions + EXCLUDED.conversions,
			ctr = CASE WHEN ad_daily_stats.impressions + EXCLUDED.impressions > 0
			      THEN (ad_daily_stats.clicks + EXCLUDED.clicks)::float8
			           / (ad_daily_stats.impressions + EXCLUDED.impressions)
			      ELSE 0 END,
			conversion_rate = CASE WHEN ad_daily_stats.clicks + EXCLUDED.clicks > 0
			      THEN (ad_daily_stats.conversions + EXCLUDED.conversions)::float8
			           / (ad_daily_stats.clicks + EXCLUDED.clicks)
			      ELSE 0 END,
			updated_at = now()
	`, adID, statDate, dImp, dClk, dCnv)
	if err != nil {
		return fmt.Errorf("failed to apply event to daily stats: %w", err)
	}
	return nil
}

func (s *PostgresStatStore) ListRecent(ctx context.Context, adIDs []string, since string) (map[string][]*models.AdDailyStat, error) {
	if len(adIDs) == 0 {
		return map[string][]*models.AdDailyStat{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ad_id, to_char(stat_date, 'YYYY-MM-DD'),
		       impressions, clicks, conversions, ctr, conversion_rate, updated_at
		FROM ad_daily_stats
		WHERE ad_id = ANY($1) AND stat_date >= $2::date
		ORDER BY stat_date DESC
	`, adIDs, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily stats: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]*models.AdDailyStat)
	for rows.Next() {
		var st models.AdDailyStat
		if err := rows.Scan(&st.AdID, &st.StatDate, &st.Impressions, &st.Clicks,
			&st.Conversions, &st.CTR, &st.ConversionRate, &st.UpdatedAt); err != nil {
			return nil, err
		}
		res[st.AdID] = append(res[st.AdID], &st)
	}
	return res, rows.Err()
}
