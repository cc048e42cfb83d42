package users_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/testdb"
)

func TestSetWorkZones_RejectsNonZoneNodes(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(t)
	geoRepo := geo.NewRepo(pool)
	repo := users.NewRepo(pool)

	country, err := geoRepo.CreateNode(ctx, geo.LevelCountry, nil, "Cuba")
	if err != nil {
		t.Fatalf("seed country: %v", err)
	}
	province, err := geoRepo.CreateNode(ctx, geo.LevelProvince, &country.ID, "La Habana")
	if err != nil {
		t.Fatalf("seed province: %v", err)
	}
	zone, err := geoRepo.CreateNode(ctx, geo.LevelZone, &province.ID, "Vedado")
	if err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	u, err := repo.Create(ctx, 2001, "t1")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if err := repo.SetWorkZones(ctx, u.ID, []int64{province.ID}); !errors.Is(err, users.ErrInvalidZone) {
		t.Errorf("province as work zone: got %v, want ErrInvalidZone", err)
	}
	if err := repo.SetWorkZones(ctx, u.ID, []int64{zone.ID, zone.ID + 500}); !errors.Is(err, users.ErrInvalidZone) {
		t.Errorf("absent id in set: got %v, want ErrInvalidZone", err)
	}

	if err := repo.SetWorkZones(ctx, u.ID, []int64{zone.ID}); err != nil {
		t.Fatalf("valid zone: %v", err)
	}
	got, err := repo.ListWorkZones(ctx, u.ID)
	if err != nil || len(got) != 1 || got[0] != zone.ID {
		t.Fatalf("work zones = %v (err %v), want [%d]", got, err, zone.ID)
	}

	if err := geoRepo.Deactivate(ctx, zone.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := repo.SetWorkZones(ctx, u.ID, []int64{zone.ID}); !errors.Is(err, users.ErrInvalidZone) {
		t.Errorf("deactivated zone: got %v, want ErrInvalidZone", err)
	}
}

func TestCreate_KeepsUsernameWhenEmpty(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(t)
	repo := users.NewRepo(pool)

	if _, err := repo.Create(ctx, 2002, "ana"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Startup bootstrap and keyboard-only updates carry no username; that
	// must not wipe the stored one.
	u, err := repo.Create(ctx, 2002, "")
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if u.Username != "ana" {
		t.Errorf("username = %q, want ana", u.Username)
	}

	u, err = repo.Create(ctx, 2002, "ana_b")
	if err != nil {
		t.Fatalf("re-create: %v", err)
	}
	if u.Username != "ana_b" {
		t.Errorf("username = %q, want ana_b", u.Username)
	}
}
