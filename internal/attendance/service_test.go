package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/geofence"
	"geoattend/internal/identity"
	"geoattend/internal/location"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func setup(t *testing.T, store Store, opts ...Option) (*Service, *clock) {
	t.Helper()
	fence, err := geofence.New(geofence.DefaultCenter, geofence.DefaultRadius)
	require.NoError(t, err)
	clk := &clock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.now), WithZone(time.UTC)}, opts...)
	return NewService(store, fence, opts...), clk
}

var ann = identity.User{Email: "ann@example.com", Name: "Ann"}

func atCenter() location.Source { return location.Fixed{Point: geofence.DefaultCenter} }

func TestMarkScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc, clk := setup(t, store)

	res, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, res.Status)
	assert.Equal(t, "2024-01-01", res.Date)
	assert.True(t, res.Decision.Admitted)

	rec, err := store.Get(ctx, "ann_example_com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"2024-01-01"}, rec.Dates)
	assert.Equal(t, "Ann", rec.Name)
	assert.Equal(t, "ann@example.com", rec.Email)

	// same day again is a no-op, not an error
	clk.set(time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC))
	res, err = svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyMarked, res.Status)
	rec, _ = store.Get(ctx, "ann_example_com")
	assert.Equal(t, []string{"2024-01-01"}, rec.Dates)

	clk.set(time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC))
	res, err = svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, res.Status)
	assert.Len(t, res.Record.Dates, 2)
	rec, _ = store.Get(ctx, "ann_example_com")
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, rec.Dates)
}

func TestMarkUsesCallerZone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc, clk := setup(t, store)
	clk.set(time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC))

	kolkata := time.FixedZone("IST", 5*3600+1800)
	res, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter(), Zone: kolkata})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", res.Date)
}

type denied struct{}

func (denied) RequestPermission(context.Context) (location.Permission, error) {
	return location.Denied, nil
}

func (denied) CurrentCoordinate(context.Context) (geofence.Point, error) {
	panic("position must not be read without permission")
}

type brokenGPS struct{}

func (brokenGPS) RequestPermission(context.Context) (location.Permission, error) {
	return location.Granted, nil
}

func (brokenGPS) CurrentCoordinate(context.Context) (geofence.Point, error) {
	return geofence.Point{}, location.ErrUnavailable
}

func TestMarkFailures(t *testing.T) {
	far := geofence.Point{Lat: geofence.DefaultCenter.Lat + 0.01, Lon: geofence.DefaultCenter.Lon}

	tests := []struct {
		name    string
		user    identity.User
		src     location.Source
		wantErr error
		status  Status
	}{
		{name: "permission denied", user: ann, src: denied{}, wantErr: ErrPermissionDenied},
		{name: "no position", user: ann, src: brokenGPS{}, wantErr: ErrLocationUnavailable},
		{name: "no source", user: ann, src: nil, wantErr: ErrLocationUnavailable},
		{name: "bad coordinate", user: ann, src: location.Fixed{Point: geofence.Point{Lat: 91}}, wantErr: geofence.ErrInvalidCoordinate},
		{name: "empty email", user: identity.User{Name: "x"}, src: atCenter(), wantErr: identity.ErrInvalidIdentity},
		{name: "outside fence", user: ann, src: location.Fixed{Point: far}, status: StatusOutside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			svc, _ := setup(t, store)
			res, err := svc.Mark(context.Background(), MarkRequest{User: tt.user, Source: tt.src})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.status, res.Status)
			}
			all, _ := store.List(context.Background())
			assert.Empty(t, all, "no state change expected")
		})
	}
}

func TestOutsideMessage(t *testing.T) {
	far := geofence.Point{Lat: geofence.DefaultCenter.Lat + 0.01, Lon: geofence.DefaultCenter.Lon}
	svc, _ := setup(t, NewMemoryStore())
	res, err := svc.Mark(context.Background(), MarkRequest{User: ann, Source: location.Fixed{Point: far}})
	require.NoError(t, err)
	assert.False(t, res.Decision.Admitted)
	assert.Contains(t, res.Message(), "within 500m")
	assert.Contains(t, res.Message(), "You are currently 1111.9 meters away.")
}

type failingStore struct{ MemoryStore }

func (*failingStore) Get(context.Context, string) (*Record, error) {
	return nil, errors.New("connection refused")
}

func (*failingStore) List(context.Context) ([]Record, error) {
	return nil, errors.New("connection refused")
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, &failingStore{})

	_, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, "Could not mark attendance.", Message(err))

	_, err = svc.Profile(ctx, ann, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.Leaderboard(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// racingStore reports the record absent but then refuses Create, as if
// another instance created it between our read and write.
type racingStore struct{ *MemoryStore }

func (s racingStore) Get(context.Context, string) (*Record, error) { return nil, nil }

func (s racingStore) Create(ctx context.Context, rec Record) error {
	_ = s.MemoryStore.Create(ctx, Record{Key: rec.Key, Email: rec.Email, Dates: []string{}})
	return ErrRecordExists
}

func TestMarkCreateRace(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	svc, _ := setup(t, racingStore{mem})

	res, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, res.Status)
	rec, _ := mem.Get(ctx, "ann_example_com")
	assert.Equal(t, []string{"2024-01-01"}, rec.Dates)
}

type gatedStore struct {
	*MemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Get(ctx context.Context, key string) (*Record, error) {
	s.entered <- struct{}{}
	<-s.gate
	return s.MemoryStore.Get(ctx, key)
}

func TestMarkInProgress(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{MemoryStore: NewMemoryStore(), entered: make(chan struct{}, 1), gate: make(chan struct{})}
	svc, _ := setup(t, store)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
		done <- err
	}()
	<-store.entered

	_, err := svc.Mark(ctx, MarkRequest{User: ann, Source: atCenter()})
	assert.ErrorIs(t, err, ErrMarkInProgress)

	close(store.gate)
	require.NoError(t, <-done)

	rec, _ := store.MemoryStore.Get(ctx, "ann_example_com")
	assert.Equal(t, []string{"2024-01-01"}, rec.Dates)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc, _ := setup(t, store)

	p, err := svc.Profile(ctx, ann, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Days)
	assert.Empty(t, p.Dates)
	assert.False(t, p.TodayMarked)
	assert.Equal(t, "2024-01-01", p.Today)

	require.NoError(t, store.Create(ctx, Record{
		Key: "ann_example_com", Name: "Ann", Email: ann.Email,
		Dates: []string{"2023-12-30", "2024-01-01", "2023-12-31"},
	}))
	p, err = svc.Profile(ctx, ann, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Days)
	assert.Equal(t, []string{"2024-01-01", "2023-12-31", "2023-12-30"}, p.Dates)
	assert.True(t, p.TodayMarked)

	_, err = svc.Profile(ctx, identity.User{}, nil)
	assert.ErrorIs(t, err, identity.ErrInvalidIdentity)
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc, _ := setup(t, store)

	require.NoError(t, store.Create(ctx, Record{Key: "b", Name: "Bob", Email: "b@x.io", Dates: []string{"2024-01-01"}}))
	require.NoError(t, store.Create(ctx, Record{Key: "c", Email: "", Dates: []string{"2024-01-01", "2024-01-02"}}))
	require.NoError(t, store.Create(ctx, Record{Key: "a", Name: "Al", Email: "a@x.io", Dates: []string{"2024-01-03"}}))

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Standing{
		{Key: "c", Name: "User", Email: "unknown", Days: 2},
		{Key: "a", Name: "Al", Email: "a@x.io", Days: 1},
		{Key: "b", Name: "Bob", Email: "b@x.io", Days: 1},
	}, board)
}
