package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
)

type mockSink struct {
	sent    []Message
	failFor map[int64]bool
}

func (m *mockSink) Send(_ context.Context, msg Message) error {
	if m.failFor[msg.UserID] {
		return errors.New("delivery failed")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockDirectory struct {
	byID    map[int64]*users.User
	byZone  map[int64][]users.User
	zoneErr error
}

func (m *mockDirectory) GetByID(_ context.Context, id int64) (*users.User, error) {
	return m.byID[id], nil
}

func (m *mockDirectory) ListTransportersByZone(_ context.Context, zoneID int64) ([]users.User, error) {
	if m.zoneErr != nil {
		return nil, m.zoneErr
	}
	return m.byZone[zoneID], nil
}

type mockNames struct{}

func (mockNames) ResolveName(_ context.Context, _ int64) string { return "Centro Habana" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func transporter(id int64) users.User {
	return users.User{ID: id, TelegramID: id * 1000, Role: users.RoleTransporter, Status: users.StatusActive}
}

func testRequest() *requests.Request {
	return &requests.Request{
		ID:          42,
		RequesterID: 1,
		ZoneID:      100,
		Status:      requests.StatusActive,
		Payload: requests.Payload{
			VehicleType: "Camioneta",
			CargoType:   "Carga ligera (hasta 20kg)",
			Description: "Cajas de libros",
			Pickup:      "Calle 23",
			Dropoff:     "Calle 41",
			Budget:      "500 CUP",
		},
	}
}

func TestBroadcastNew_ReachesZoneTransporters(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	dir := &mockDirectory{byZone: map[int64][]users.User{
		100: {transporter(2), transporter(3)},
	}}
	n := NewNotifier(dir, mockNames{}, sink, testLogger())

	if err := n.BroadcastNew(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sink.sent))
	}
	for _, msg := range sink.sent {
		if !strings.Contains(msg.Text, "Centro Habana") {
			t.Errorf("offer text missing zone name: %q", msg.Text)
		}
		if len(msg.Buttons) != 1 || msg.Buttons[0].Data != "req:accept:42" {
			t.Errorf("unexpected buttons: %+v", msg.Buttons)
		}
	}
}

func TestBroadcastNew_SkipsRequester(t *testing.T) {
	t.Parallel()

	// Requester is also a transporter working the same zone.
	sink := &mockSink{}
	dir := &mockDirectory{byZone: map[int64][]users.User{
		100: {transporter(1), transporter(2)},
	}}
	n := NewNotifier(dir, mockNames{}, sink, testLogger())

	if err := n.BroadcastNew(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sink.sent))
	}
	if sink.sent[0].UserID != 2 {
		t.Errorf("message went to user %d, want 2", sink.sent[0].UserID)
	}
}

func TestBroadcastNew_SendFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	sink := &mockSink{failFor: map[int64]bool{2: true}}
	dir := &mockDirectory{byZone: map[int64][]users.User{
		100: {transporter(2), transporter(3), transporter(4)},
	}}
	n := NewNotifier(dir, mockNames{}, sink, testLogger())

	if err := n.BroadcastNew(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 delivered messages, got %d", len(sink.sent))
	}
}

func TestBroadcastNew_ListError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	n := NewNotifier(&mockDirectory{zoneErr: boom}, mockNames{}, &mockSink{}, testLogger())

	if err := n.BroadcastNew(context.Background(), testRequest()); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestNotifyReservation_PromptsRequester(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	dir := &mockDirectory{byID: map[int64]*users.User{
		5: {ID: 5, FullName: "Pedro Díaz"},
	}}
	n := NewNotifier(dir, mockNames{}, sink, testLogger())

	req := testRequest()
	tid := int64(5)
	req.TransporterID = &tid
	req.Status = requests.StatusPending

	n.NotifyReservation(context.Background(), req)

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sink.sent))
	}
	msg := sink.sent[0]
	if msg.UserID != req.RequesterID {
		t.Errorf("prompt went to user %d, want requester %d", msg.UserID, req.RequesterID)
	}
	if !strings.Contains(msg.Text, "Pedro Díaz") {
		t.Errorf("prompt missing transporter name: %q", msg.Text)
	}
	want := map[string]bool{"req:confirm:42": false, "req:reject:42": false}
	for _, b := range msg.Buttons {
		want[b.Data] = true
	}
	for data, seen := range want {
		if !seen {
			t.Errorf("missing button %s", data)
		}
	}
}

func TestNotifyOutcome(t *testing.T) {
	t.Parallel()

	tid := int64(5)

	cases := []struct {
		outcome     Outcome
		transporter *int64
		wantUser    int64
		wantText    string
	}{
		{OutcomeConfirmed, &tid, 5, "Contacto: Ana, tel. +53555"},
		{OutcomeRejected, &tid, 5, fmt.Sprintf("solicitud #%d", 42)},
		{OutcomeExpired, nil, 1, "expiró"},
	}

	for _, tc := range cases {
		sink := &mockSink{}
		dir := &mockDirectory{byID: map[int64]*users.User{
			1: {ID: 1, FullName: "Ana", Phone: "+53555"},
		}}
		n := NewNotifier(dir, mockNames{}, sink, testLogger())

		n.NotifyOutcome(context.Background(), testRequest(), tc.transporter, tc.outcome)

		if len(sink.sent) != 1 {
			t.Fatalf("%s: expected 1 message, got %d", tc.outcome, len(sink.sent))
		}
		msg := sink.sent[0]
		if msg.UserID != tc.wantUser {
			t.Errorf("%s: message went to %d, want %d", tc.outcome, msg.UserID, tc.wantUser)
		}
		if !strings.Contains(msg.Text, tc.wantText) {
			t.Errorf("%s: text %q missing %q", tc.outcome, msg.Text, tc.wantText)
		}
	}
}

func TestNotifyOutcome_RejectedWithoutTransporterIsSilent(t *testing.T) {
	t.Parallel()

	sink := &mockSink{}
	n := NewNotifier(&mockDirectory{}, mockNames{}, sink, testLogger())

	n.NotifyOutcome(context.Background(), testRequest(), nil, OutcomeRejected)

	if len(sink.sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(sink.sent))
	}
}
