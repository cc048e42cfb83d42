package requests_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecotransporte/dispatch-bot/internal/domain/geo"
	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/testdb"
)

type fixture struct {
	pool     *pgxpool.Pool
	geo      *geo.Repo
	users    *users.Repo
	requests *requests.Repo

	countryID  int64
	provinceID int64
	zoneID     int64

	requester    *users.User
	transporter  *users.User
	transporter2 *users.User
}

func setup(t *testing.T) (*fixture, context.Context) {
	t.Helper()
	ctx := context.Background()

	pool := testdb.Pool(t)
	f := &fixture{
		pool:     pool,
		geo:      geo.NewRepo(pool),
		users:    users.NewRepo(pool),
		requests: requests.NewRepo(pool),
	}

	country, err := f.geo.CreateNode(ctx, geo.LevelCountry, nil, "Cuba")
	if err != nil {
		t.Fatalf("seed country: %v", err)
	}
	province, err := f.geo.CreateNode(ctx, geo.LevelProvince, &country.ID, "La Habana")
	if err != nil {
		t.Fatalf("seed province: %v", err)
	}
	zone, err := f.geo.CreateNode(ctx, geo.LevelZone, &province.ID, "Centro Habana")
	if err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	f.countryID, f.provinceID, f.zoneID = country.ID, province.ID, zone.ID

	f.requester = seedUser(t, ctx, f.users, 1001, users.RoleRequester)
	f.transporter = seedUser(t, ctx, f.users, 1002, users.RoleTransporter)
	f.transporter2 = seedUser(t, ctx, f.users, 1003, users.RoleTransporter)
	return f, ctx
}

func seedUser(t *testing.T, ctx context.Context, repo *users.Repo, tgID int64, role users.Role) *users.User {
	t.Helper()
	u, err := repo.Create(ctx, tgID, "")
	if err != nil {
		t.Fatalf("seed user %d: %v", tgID, err)
	}
	if err := repo.SetRole(ctx, tgID, role); err != nil {
		t.Fatalf("seed role %d: %v", tgID, err)
	}
	if err := repo.Activate(ctx, tgID); err != nil {
		t.Fatalf("activate %d: %v", tgID, err)
	}
	return u
}

func payload() requests.Payload {
	return requests.Payload{
		VehicleType: "Camioneta",
		CargoType:   "Carga ligera (hasta 20kg)",
		Description: "Cajas de libros",
		Pickup:      "Calle 23",
		Dropoff:     "Calle 41",
		Budget:      "500 CUP",
	}
}

func TestCreate_RejectsNonZoneScope(t *testing.T) {
	f, ctx := setup(t)

	for _, scope := range []int64{f.countryID, f.provinceID, f.zoneID + 1000} {
		if _, err := f.requests.Create(ctx, f.requester.ID, scope, payload()); !errors.Is(err, requests.ErrInvalidZone) {
			t.Errorf("scope %d: got %v, want ErrInvalidZone", scope, err)
		}
	}

	if err := f.geo.Deactivate(ctx, f.zoneID); err != nil {
		t.Fatalf("deactivate zone: %v", err)
	}
	if _, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload()); !errors.Is(err, requests.ErrInvalidZone) {
		t.Errorf("deactivated zone: got %v, want ErrInvalidZone", err)
	}
}

func TestCreate_ZoneScopeSucceeds(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != requests.StatusActive {
		t.Errorf("status = %s, want active", req.Status)
	}
	if req.TransporterID != nil || req.ConfirmDeadline != nil {
		t.Error("fresh request must carry no transporter or deadline")
	}
}

func TestTryReserve_SingleWinner(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i, tid := range []int64{f.transporter.ID, f.transporter2.ID} {
		wg.Add(1)
		go func(i int, tid int64) {
			defer wg.Done()
			_, results[i] = f.requests.TryReserve(ctx, req.ID, tid, now)
		}(i, tid)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, requests.ErrAlreadyTaken):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one of each", won, lost)
	}

	got, err := f.requests.GetByID(ctx, req.ID)
	if err != nil || got == nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != requests.StatusPending {
		t.Errorf("status = %s, want pending_confirmation", got.Status)
	}
	if got.TransporterID == nil {
		t.Fatal("winner must be recorded")
	}
	if got.ConfirmDeadline == nil {
		t.Fatal("deadline must be set")
	}
	if d := got.ConfirmDeadline.Sub(now.Add(requests.ConfirmWindow)); d.Abs() > time.Second {
		t.Errorf("deadline = %v, want about %v", got.ConfirmDeadline, now.Add(requests.ConfirmWindow))
	}
}

func TestTryReserve_NonActiveNeverMutates(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, time.Now()); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter2.ID, time.Now()); !errors.Is(err, requests.ErrAlreadyTaken) {
		t.Fatalf("second reserve: got %v, want ErrAlreadyTaken", err)
	}

	got, _ := f.requests.GetByID(ctx, req.ID)
	if got.TransporterID == nil || *got.TransporterID != f.transporter.ID {
		t.Error("losing attempt must not displace the winner")
	}

	// Terminal states answer the same way.
	if _, err := f.requests.Confirm(ctx, req.ID, f.requester.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter2.ID, time.Now()); !errors.Is(err, requests.ErrAlreadyTaken) {
		t.Fatalf("reserve on confirmed: got %v, want ErrAlreadyTaken", err)
	}
}

func TestConfirm_OwnershipAndState(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.requests.Confirm(ctx, req.ID, f.requester.ID); !errors.Is(err, requests.ErrInvalidState) {
		t.Fatalf("confirm from active: got %v, want ErrInvalidState", err)
	}

	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, time.Now()); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := f.requests.Confirm(ctx, req.ID, f.transporter.ID); !errors.Is(err, requests.ErrNotOwner) {
		t.Fatalf("confirm by stranger: got %v, want ErrNotOwner", err)
	}
	got, _ := f.requests.GetByID(ctx, req.ID)
	if got.Status != requests.StatusPending {
		t.Fatalf("failed confirm must not change state, got %s", got.Status)
	}

	confirmed, err := f.requests.Confirm(ctx, req.ID, f.requester.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != requests.StatusConfirmed || confirmed.ConfirmDeadline != nil {
		t.Errorf("confirmed = %+v, want confirmed status and nil deadline", confirmed)
	}

	var closed int
	if err := f.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM closed_requests WHERE request_id = $1`, req.ID).Scan(&closed); err != nil {
		t.Fatalf("closed lookup: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed_requests rows = %d, want 1", closed)
	}

	if _, err := f.requests.Confirm(ctx, req.ID, f.requester.ID); !errors.Is(err, requests.ErrInvalidState) {
		t.Fatalf("double confirm: got %v, want ErrInvalidState", err)
	}
}

func TestReject_RevertsAndAllowsRetry(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, time.Now()); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := f.requests.Reject(ctx, req.ID, f.transporter.ID); !errors.Is(err, requests.ErrNotOwner) {
		t.Fatalf("reject by stranger: got %v, want ErrNotOwner", err)
	}

	reverted, err := f.requests.Reject(ctx, req.ID, f.requester.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if reverted.Status != requests.StatusActive || reverted.TransporterID != nil || reverted.ConfirmDeadline != nil {
		t.Errorf("revert = %+v, want active with cleared assignment", reverted)
	}

	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter2.ID, time.Now()); err != nil {
		t.Fatalf("retry after reject: %v", err)
	}
}

func TestExpireIfDue_IdempotentRevert(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Reserve in the past so the window has already elapsed.
	past := time.Now().Add(-requests.ConfirmWindow - time.Minute)
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, past); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	reverted, err := f.requests.ExpireIfDue(ctx, req.ID, time.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if reverted == nil || reverted.Status != requests.StatusActive || reverted.TransporterID != nil {
		t.Fatalf("expire result = %+v, want active with cleared transporter", reverted)
	}

	again, err := f.requests.ExpireIfDue(ctx, req.ID, time.Now())
	if err != nil {
		t.Fatalf("re-expire: %v", err)
	}
	if again != nil {
		t.Fatalf("second expire = %+v, want no-op", again)
	}

	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter2.ID, time.Now()); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
}

func TestExpireIfDue_OpenWindowIsNoOp(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, time.Now()); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got, err := f.requests.ExpireIfDue(ctx, req.ID, time.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got != nil {
		t.Fatalf("expire within window = %+v, want no-op", got)
	}
	reloaded, _ := f.requests.GetByID(ctx, req.ID)
	if reloaded.Status != requests.StatusPending {
		t.Errorf("status = %s, want pending_confirmation", reloaded.Status)
	}
}

func TestCancel_OwnerOnlyFromActive(t *testing.T) {
	f, ctx := setup(t)

	req, err := f.requests.Create(ctx, f.requester.ID, f.zoneID, payload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.requests.Cancel(ctx, req.ID, f.transporter.ID); !errors.Is(err, requests.ErrNotOwner) {
		t.Fatalf("cancel by stranger: got %v, want ErrNotOwner", err)
	}

	cancelled, err := f.requests.Cancel(ctx, req.ID, f.requester.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != requests.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	if _, err := f.requests.Cancel(ctx, req.ID, f.requester.ID); !errors.Is(err, requests.ErrInvalidState) {
		t.Fatalf("double cancel: got %v, want ErrInvalidState", err)
	}
	if _, err := f.requests.TryReserve(ctx, req.ID, f.transporter.ID, time.Now()); !errors.Is(err, requests.ErrAlreadyTaken) {
		t.Fatalf("reserve on cancelled: got %v, want ErrAlreadyTaken", err)
	}
}
