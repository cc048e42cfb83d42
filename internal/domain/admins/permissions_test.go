package admins

import (
	"context"
	"errors"
	"testing"

	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
)

// mockGeo serves parent chains from a fixed map, node itself first.
type mockGeo struct {
	chains map[int64][]int64
	err    error
}

func (m *mockGeo) Chain(_ context.Context, id int64) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.chains[id], nil
}

func ptr(v int64) *int64 { return &v }

// Fixture hierarchy:
//
//	country 1
//	  province 10 (zone 100, zone 101)
//	country 2
//	  province 20 (zone 200)
func fixtureGeo() *mockGeo {
	return &mockGeo{chains: map[int64][]int64{
		1:   {1},
		2:   {2},
		10:  {10, 1},
		20:  {20, 2},
		100: {100, 10, 1},
		101: {101, 10, 1},
		200: {200, 20, 2},
	}}
}

func grant(level Level, jurisdiction *int64) *Grant {
	return &Grant{UserID: 7, Level: level, JurisdictionID: jurisdiction, Active: true}
}

func TestCanDesignateAdmins_SupremeOnly(t *testing.T) {
	t.Parallel()

	if !CanDesignateAdmins(grant(LevelSupreme, nil)) {
		t.Error("supreme must be able to designate admins")
	}
	for _, g := range []*Grant{
		grant(LevelCountry, ptr(1)),
		grant(LevelProvince, ptr(10)),
		grant(LevelZone, ptr(100)),
		nil,
	} {
		if CanDesignateAdmins(g) {
			t.Errorf("grant %+v must not designate admins", g)
		}
	}

	revoked := grant(LevelSupreme, nil)
	revoked.Active = false
	if CanDesignateAdmins(revoked) {
		t.Error("inactive grant must not designate admins")
	}
}

func TestAuthorizeCreate(t *testing.T) {
	t.Parallel()

	r := NewResolver(fixtureGeo())
	ctx := context.Background()

	cases := []struct {
		name     string
		grant    *Grant
		level    geo.Level
		parentID *int64
		wantErr  error
	}{
		{"supreme creates country", grant(LevelSupreme, nil), geo.LevelCountry, nil, nil},
		{"supreme creates zone anywhere", grant(LevelSupreme, nil), geo.LevelZone, ptr(20), nil},

		{"country admin creates province in own country", grant(LevelCountry, ptr(1)), geo.LevelProvince, ptr(1), nil},
		{"country admin creates zone in own country", grant(LevelCountry, ptr(1)), geo.LevelZone, ptr(10), nil},
		{"country admin cannot create country", grant(LevelCountry, ptr(1)), geo.LevelCountry, nil, ErrUnauthorized},
		{"country admin cannot cross countries", grant(LevelCountry, ptr(1)), geo.LevelProvince, ptr(2), ErrUnauthorized},

		{"province admin creates zone in own province", grant(LevelProvince, ptr(10)), geo.LevelZone, ptr(10), nil},
		{"province admin cannot create province", grant(LevelProvince, ptr(10)), geo.LevelProvince, ptr(1), ErrUnauthorized},
		{"province admin cannot cross provinces", grant(LevelProvince, ptr(10)), geo.LevelZone, ptr(20), ErrUnauthorized},
		{"province admin cannot create country", grant(LevelProvince, ptr(10)), geo.LevelCountry, nil, ErrUnauthorized},

		{"zone admin creates nothing", grant(LevelZone, ptr(100)), geo.LevelZone, ptr(10), ErrUnauthorized},
		{"nil grant", nil, geo.LevelZone, ptr(10), ErrUnauthorized},
	}

	for _, tc := range cases {
		err := r.AuthorizeCreate(ctx, tc.grant, tc.level, tc.parentID)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestAuthorizeCreate_InactiveGrant(t *testing.T) {
	t.Parallel()

	r := NewResolver(fixtureGeo())
	g := grant(LevelCountry, ptr(1))
	g.Active = false

	if err := r.AuthorizeCreate(context.Background(), g, geo.LevelProvince, ptr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("inactive grant: got %v, want ErrUnauthorized", err)
	}
}

func TestAuthorizeManage(t *testing.T) {
	t.Parallel()

	r := NewResolver(fixtureGeo())
	ctx := context.Background()

	country1 := &geo.Node{ID: 1, Level: geo.LevelCountry, Active: true}
	province10 := &geo.Node{ID: 10, Level: geo.LevelProvince, ParentID: ptr(1), Active: true}
	province20 := &geo.Node{ID: 20, Level: geo.LevelProvince, ParentID: ptr(2), Active: true}
	zone100 := &geo.Node{ID: 100, Level: geo.LevelZone, ParentID: ptr(10), Active: true}
	zone200 := &geo.Node{ID: 200, Level: geo.LevelZone, ParentID: ptr(20), Active: true}

	cases := []struct {
		name    string
		grant   *Grant
		node    *geo.Node
		wantErr error
	}{
		{"supreme manages countries", grant(LevelSupreme, nil), country1, nil},
		{"country admin manages own province", grant(LevelCountry, ptr(1)), province10, nil},
		{"country admin manages own zone", grant(LevelCountry, ptr(1)), zone100, nil},
		{"country admin cannot manage the country itself", grant(LevelCountry, ptr(1)), country1, ErrUnauthorized},
		{"country admin cannot manage foreign province", grant(LevelCountry, ptr(1)), province20, ErrUnauthorized},
		{"province admin manages own zone", grant(LevelProvince, ptr(10)), zone100, nil},
		{"province admin cannot manage the province itself", grant(LevelProvince, ptr(10)), province10, ErrUnauthorized},
		{"province admin cannot manage foreign zone", grant(LevelProvince, ptr(10)), zone200, ErrUnauthorized},
		{"zone admin manages only its zone", grant(LevelZone, ptr(100)), zone100, nil},
		{"zone admin cannot manage sibling zone", grant(LevelZone, ptr(100)), zone200, ErrUnauthorized},
		{"nil node", grant(LevelSupreme, nil), nil, ErrUnauthorized},
	}

	for _, tc := range cases {
		err := r.AuthorizeManage(ctx, tc.grant, tc.node)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestAuthorizeCreate_GeoErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("geo unavailable")
	r := NewResolver(&mockGeo{err: boom})

	err := r.AuthorizeCreate(context.Background(), grant(LevelCountry, ptr(1)), geo.LevelProvince, ptr(1))
	if !errors.Is(err, boom) {
		t.Fatalf("expected geo error, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("infrastructure failure must not read as a denial")
	}
}
