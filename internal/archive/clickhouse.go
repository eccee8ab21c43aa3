package archive

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/models"
)

// ClickHouseArchive writes accepted tracking events to ClickHouse for
// offline analytics. Write-only from the server's point of view: nothing in
// the serving path reads it back.
type ClickHouseArchive struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewClickHouseArchive(conn driver.Conn, logger *zap.Logger) *ClickHouseArchive {
	return &ClickHouseArchive{conn: conn, logger: logger}
}

// InitSchema creates the archive table if it does not exist yet.
func (a *ClickHouseArchive) InitSchema(ctx context.Context) error {
	err := a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ad_events_archive (
			id            String,
			user_id       String,
			ad_id         String,
			campaign_id   String,
			impression_id String,
			event_type    LowCardinality(String),
			placement     LowCardinality(String),
			hobby_context String,
			created_at    DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(created_at)
		ORDER BY (created_at, ad_id, user_id)
		TTL toDateTime(created_at) + INTERVAL 13 MONTH
	`)
	if err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// InsertBatch appends one batch of events to the archive.
func (a *ClickHouseArchive) InsertBatch(ctx context.Context, events []*models.AdEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO ad_events_archive
			(id, user_id, ad_id, campaign_id, impression_id, event_type, placement, hobby_context, created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.ID,
			e.UserID,
			e.AdID,
			e.CampaignID,
			e.ImpressionID,
			string(e.EventType),
			e.Placement,
			e.HobbyContext,
			e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append event to archive batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}
	return nil
}
