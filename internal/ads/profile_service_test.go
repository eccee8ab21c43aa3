package ads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/geo"
	"github.com/atharv404/kumele-ads/internal/models"
	"github.com/atharv404/kumele-ads/internal/storage"
)

// stubGeo returns a fixed answer for every lookup.
type stubGeo struct {
	info    *geo.Info
	err     error
	lookups int
}

func (g *stubGeo) Lookup(ip string) (*geo.Info, error) {
	g.lookups++
	if g.err != nil {
		return nil, g.err
	}
	return g.info, nil
}

func (g *stubGeo) Close() error { return nil }

func newProfileService(profiles *storage.InMemoryProfileStore, geoProvider geo.Provider) *ProfileService {
	return NewProfileService(profiles, geoProvider, nil, zap.NewNop())
}

func TestProfileService_Resolve_UnknownUser(t *testing.T) {
	svc := newProfileService(storage.NewInMemoryProfileStore(), nil)

	tc, err := svc.Resolve(context.Background(), "ghost", Overrides{})
	assert.Nil(t, tc)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestProfileService_Resolve_ProfileDefaults(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{
		UserID:   "u1",
		Location: "Berlin",
		Language: "de",
		Hobbies:  []string{"climbing"},
	})
	svc := newProfileService(profiles, nil)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "u1", tc.UserID)
	assert.Equal(t, "Berlin", tc.Location)
	assert.Equal(t, "de", tc.Language)
	assert.Equal(t, []string{"climbing"}, tc.Hobbies)
	assert.Nil(t, tc.Age)
}

func TestProfileService_Resolve_OverridesWin(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{
		UserID:   "u1",
		Location: "Berlin",
		Language: "de",
		Hobbies:  []string{"climbing"},
	})
	svc := newProfileService(profiles, nil)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{
		Location: "Lisbon",
		Language: "en",
		Hobbies:  []string{"surfing", "cooking"},
	})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "Lisbon", tc.Location)
	assert.Equal(t, "en", tc.Language)
	assert.Equal(t, []string{"surfing", "cooking"}, tc.Hobbies)
}

func TestProfileService_Resolve_AgeFromDateOfBirth(t *testing.T) {
	now := time.Now().UTC()

	// Birthday already passed this year versus not yet.
	passed := now.AddDate(-30, 0, -1)
	pending := now.AddDate(-30, 0, 1)

	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{UserID: "older", DateOfBirth: &passed})
	profiles.PutProfile(&models.UserProfile{UserID: "younger", DateOfBirth: &pending})
	svc := newProfileService(profiles, nil)

	tc, err := svc.Resolve(context.Background(), "older", Overrides{})
	assert.NoError(t, err)
	if tc == nil || tc.Age == nil {
		t.Fatal("expected an age")
	}
	assert.Equal(t, 30, *tc.Age)

	tc, err = svc.Resolve(context.Background(), "younger", Overrides{})
	assert.NoError(t, err)
	if tc == nil || tc.Age == nil {
		t.Fatal("expected an age")
	}
	assert.Equal(t, 29, *tc.Age)
}

func TestAgeAt(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		dob  time.Time
		now  time.Time
		want int
	}{
		{"birthday today", date(2000, 3, 15), date(2030, 3, 15), 30},
		{"day before birthday", date(2000, 3, 15), date(2030, 3, 14), 29},
		{"day after birthday", date(2000, 3, 15), date(2030, 3, 16), 30},
		{"earlier month", date(2000, 6, 1), date(2030, 3, 14), 29},
		{"later month", date(2000, 2, 1), date(2030, 3, 14), 30},
		{"leap dob before feb 29", date(2004, 2, 29), date(2025, 2, 28), 20},
		{"leap dob after feb", date(2004, 2, 29), date(2025, 3, 1), 21},
		{"dob in the future", date(2030, 1, 1), date(2025, 1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ageAt(tt.dob, tt.now))
		})
	}
}

func TestProfileService_Resolve_GeoFillsMissingLocation(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{UserID: "u1", Language: "en"})
	g := &stubGeo{info: &geo.Info{Country: "Germany", City: "Munich"}}
	svc := newProfileService(profiles, g)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{ClientIP: "203.0.113.7"})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "Munich", tc.Location)
	assert.Equal(t, 1, g.lookups)
}

func TestProfileService_Resolve_GeoFallsBackToCountry(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{UserID: "u1"})
	g := &stubGeo{info: &geo.Info{Country: "Germany"}}
	svc := newProfileService(profiles, g)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{ClientIP: "203.0.113.7"})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "Germany", tc.Location)
}

func TestProfileService_Resolve_StoredLocationSkipsGeo(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{UserID: "u1", Location: "Berlin"})
	g := &stubGeo{info: &geo.Info{City: "Munich"}}
	svc := newProfileService(profiles, g)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{ClientIP: "203.0.113.7"})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "Berlin", tc.Location)
	assert.Equal(t, 0, g.lookups)
}

func TestProfileService_Resolve_GeoFailureLeavesLocationEmpty(t *testing.T) {
	profiles := storage.NewInMemoryProfileStore()
	profiles.PutProfile(&models.UserProfile{UserID: "u1"})
	g := &stubGeo{err: errors.New("database closed")}
	svc := newProfileService(profiles, g)

	tc, err := svc.Resolve(context.Background(), "u1", Overrides{ClientIP: "203.0.113.7"})
	assert.NoError(t, err)
	if tc == nil {
		t.Fatal("expected a context")
	}
	assert.Equal(t, "", tc.Location)
}
