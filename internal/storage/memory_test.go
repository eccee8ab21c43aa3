package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharv404/kumele-ads/internal/models"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func seedInventory(t *testing.T, stats *InMemoryStatStore) *InMemoryAdRepo {
	t.Helper()
	repo := NewInMemoryAdRepo(stats)
	repo.PutAdvertiser(&models.Advertiser{ID: "adv-1", Name: "Acme"})
	repo.PutCampaign(&models.Campaign{ID: "camp-1", AdvertiserID: "adv-1", Status: models.CampaignStatusActive})
	repo.PutCampaign(&models.Campaign{ID: "camp-paused", AdvertiserID: "adv-1", Status: models.CampaignStatusPaused})
	return repo
}

func TestInMemoryAdRepoListEligible(t *testing.T) {
	repo := seedInventory(t, nil)

	repo.PutAd(&models.Ad{ID: "ad-ok", CampaignID: "camp-1", Status: models.ModerationStatusApproved})
	repo.PutAd(&models.Ad{ID: "ad-pending", CampaignID: "camp-1", Status: models.ModerationStatusPending})
	repo.PutAd(&models.Ad{ID: "ad-paused-camp", CampaignID: "camp-paused", Status: models.ModerationStatusApproved})
	repo.PutAd(&models.Ad{ID: "ad-de", CampaignID: "camp-1", Status: models.ModerationStatusApproved,
		TargetLanguages: []string{"de"}})
	repo.PutAd(&models.Ad{ID: "ad-age", CampaignID: "camp-1", Status: models.ModerationStatusApproved,
		TargetAgeMin: intPtr(40)})

	ads, err := repo.ListEligible(context.Background(), &models.TargetingContext{
		UserID: "u1", Language: "en", Age: intPtr(30),
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(ads))
	for _, a := range ads {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"ad-ok"}, ids)
}

func TestInMemoryAdRepoListEligibleNilAgePassesAgeTargets(t *testing.T) {
	repo := seedInventory(t, nil)
	repo.PutAd(&models.Ad{ID: "ad-age", CampaignID: "camp-1", Status: models.ModerationStatusApproved,
		TargetAgeMin: intPtr(18), TargetAgeMax: intPtr(35)})

	ads, err := repo.ListEligible(context.Background(), &models.TargetingContext{UserID: "u1", Language: "en"})
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, "ad-age", ads[0].ID)
}

func TestInMemoryAdRepoCampaignDailyCap(t *testing.T) {
	stats := NewInMemoryStatStore()
	repo := seedInventory(t, stats)
	repo.PutCampaign(&models.Campaign{
		ID: "camp-capped", AdvertiserID: "adv-1",
		Status: models.CampaignStatusActive, DailyImpressionCap: int64Ptr(2),
	})
	repo.PutAd(&models.Ad{ID: "ad-capped", CampaignID: "camp-capped", Status: models.ModerationStatusApproved})

	ctx := context.Background()
	today := models.StatDateOf(time.Now())
	tc := &models.TargetingContext{UserID: "u1", Language: "en"}

	ads, err := repo.ListEligible(ctx, tc)
	require.NoError(t, err)
	require.Len(t, ads, 1)

	require.NoError(t, stats.ApplyEvent(ctx, "ad-capped", today, models.EventTypeView))
	require.NoError(t, stats.ApplyEvent(ctx, "ad-capped", today, models.EventTypeView))

	ads, err = repo.ListEligible(ctx, tc)
	require.NoError(t, err)
	assert.Empty(t, ads)
}

func TestInMemoryProfileStoreNotFound(t *testing.T) {
	store := NewInMemoryProfileStore()
	_, err := store.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryEventStoreDedup(t *testing.T) {
	store := NewInMemoryEventStore(seedInventory(t, nil))
	ev := &models.AdEvent{
		ID: "e1", UserID: "u1", AdID: "ad-1", CampaignID: "camp-1",
		ImpressionID: "imp-1", EventType: models.EventTypeView, CreatedAt: time.Now(),
	}

	created, err := store.InsertEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, created)

	replay := *ev
	replay.ID = "e2"
	created, err = store.InsertEvent(context.Background(), &replay)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := store.CountUserAdEvents(context.Background(), "u1", "ad-1", models.EventTypeView, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInMemoryEventStoreAdvertiserCount(t *testing.T) {
	inventory := seedInventory(t, nil)
	inventory.PutAdvertiser(&models.Advertiser{ID: "adv-2"})
	inventory.PutCampaign(&models.Campaign{ID: "camp-2", AdvertiserID: "adv-2", Status: models.CampaignStatusActive})

	store := NewInMemoryEventStore(inventory)
	ctx := context.Background()
	now := time.Now()

	for i, campID := range []string{"camp-1", "camp-1", "camp-2"} {
		_, err := store.InsertEvent(ctx, &models.AdEvent{
			UserID: "u1", AdID: "ad-1", CampaignID: campID,
			ImpressionID: string(rune('a' + i)), EventType: models.EventTypeView, CreatedAt: now,
		})
		require.NoError(t, err)
	}

	n, err := store.CountUserAdvertiserEvents(ctx, "u1", "adv-1", models.EventTypeView, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.CountUserAdvertiserEvents(ctx, "u1", "adv-2", models.EventTypeView, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInMemoryEventStoreLastEvent(t *testing.T) {
	store := NewInMemoryEventStore(seedInventory(t, nil))
	ctx := context.Background()

	last, err := store.LastUserAdEvent(ctx, "u1", "ad-1", models.EventTypeView)
	require.NoError(t, err)
	assert.Nil(t, last)

	early := time.Now().Add(-2 * time.Hour)
	late := time.Now().Add(-10 * time.Minute)
	for i, ts := range []time.Time{early, late} {
		_, err := store.InsertEvent(ctx, &models.AdEvent{
			UserID: "u1", AdID: "ad-1", CampaignID: "camp-1",
			ImpressionID: string(rune('a' + i)), EventType: models.EventTypeView, CreatedAt: ts,
		})
		require.NoError(t, err)
	}

	last, err = store.LastUserAdEvent(ctx, "u1", "ad-1", models.EventTypeView)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(late))
}

func TestInMemoryStatStoreRates(t *testing.T) {
	store := NewInMemoryStatStore()
	ctx := context.Background()
	day := "2026-08-25"

	for i := 0; i < 10; i++ {
		require.NoError(t, store.ApplyEvent(ctx, "ad-1", day, models.EventTypeView))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, store.ApplyEvent(ctx, "ad-1", day, models.EventTypeClick))
	}
	require.NoError(t, store.ApplyEvent(ctx, "ad-1", day, models.EventTypeConversion))

	rows, err := store.ListRecent(ctx, []string{"ad-1"}, day)
	require.NoError(t, err)
	require.Len(t, rows["ad-1"], 1)

	st := rows["ad-1"][0]
	assert.Equal(t, int64(10), st.Impressions)
	assert.Equal(t, int64(4), st.Clicks)
	assert.Equal(t, int64(1), st.Conversions)
	assert.InDelta(t, 0.4, st.CTR, 1e-9)
	assert.InDelta(t, 0.25, st.ConversionRate, 1e-9)
}

func TestInMemoryStatStoreZeroDenominators(t *testing.T) {
	store := NewInMemoryStatStore()
	ctx := context.Background()

	// A click with no impressions must not divide by zero.
	require.NoError(t, store.ApplyEvent(ctx, "ad-1", "2026-08-25", models.EventTypeClick))

	rows, err := store.ListRecent(ctx, []string{"ad-1"}, "2026-08-25")
	require.NoError(t, err)
	st := rows["ad-1"][0]
	assert.Zero(t, st.CTR)
	assert.Zero(t, st.ConversionRate)
}

func TestInMemoryStatStoreConcurrentIncrements(t *testing.T) {
	store := NewInMemoryStatStore()
	ctx := context.Background()
	day := "2026-08-25"

	const perAd = 200
	var wg sync.WaitGroup
	for _, adID := range []string{"ad-a", "ad-b"} {
		for i := 0; i < perAd; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_ = store.ApplyEvent(ctx, id, day, models.EventTypeView)
			}(adID)
		}
	}
	wg.Wait()

	rows, err := store.ListRecent(ctx, []string{"ad-a", "ad-b"}, day)
	require.NoError(t, err)
	assert.Equal(t, int64(perAd), rows["ad-a"][0].Impressions)
	assert.Equal(t, int64(perAd), rows["ad-b"][0].Impressions)
}

func TestInMemoryStatStoreListRecentOrdersNewestFirst(t *testing.T) {
	store := NewInMemoryStatStore()
	ctx := context.Background()

	require.NoError(t, store.ApplyEvent(ctx, "ad-1", "2026-08-23", models.EventTypeView))
	require.NoError(t, store.ApplyEvent(ctx, "ad-1", "2026-08-25", models.EventTypeView))
	require.NoError(t, store.ApplyEvent(ctx, "ad-1", "2026-08-24", models.EventTypeView))

	rows, err := store.ListRecent(ctx, []string{"ad-1"}, "2026-08-19")
	require.NoError(t, err)
	require.Len(t, rows["ad-1"], 3)
	assert.Equal(t, "2026-08-25", rows["ad-1"][0].StatDate)
	assert.Equal(t, "2026-08-24", rows["ad-1"][1].StatDate)
	assert.Equal(t, "2026-08-23", rows["ad-1"][2].StatDate)
}

func TestInMemoryConfigStore(t *testing.T) {
	store := NewInMemoryConfigStore()
	ctx := context.Background()

	enabled, err := store.GetFlag(ctx, "admob_enabled")
	require.NoError(t, err)
	assert.False(t, enabled)

	store.PutFlag("admob_enabled", true)
	enabled, err = store.GetFlag(ctx, "admob_enabled")
	require.NoError(t, err)
	assert.True(t, enabled)

	cfg, err := store.GetAdNetworkConfig(ctx, "admob")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	store.PutAdNetworkConfig(&models.AdNetworkConfig{
		Name: "admob", Enabled: true,
		UnitIDs: map[string]string{"event_feed": "unit-123"},
	})
	cfg, err = store.GetAdNetworkConfig(ctx, "admob")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "unit-123", cfg.UnitIDs["event_feed"])
}
