package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecotransporte/dispatch-bot/internal/domain/requests"
	"github.com/ecotransporte/dispatch-bot/internal/domain/users"
	"github.com/ecotransporte/dispatch-bot/internal/infra/metrics"
)

// Message is a rendered notification for one user. Buttons become inline
// keyboard rows in the Telegram sink.
type Message struct {
	UserID  int64 // internal user id, resolved to a chat by the sink
	Text    string
	Buttons []Button
}

type Button struct {
	Label string
	Data  string
}

// Sink delivers a rendered message. Delivery failures are the sink's problem
// to report; the notifier logs and moves on, it never propagates them to the
// operation that triggered the notification.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Directory is the slice of the user store the notifier needs.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	ListTransportersByZone(ctx context.Context, zoneID int64) ([]users.User, error)
}

// NameResolver renders node names for messages; it never fails.
type NameResolver interface {
	ResolveName(ctx context.Context, id int64) string
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeExpired   Outcome = "expired"
)

type Notifier struct {
	dir   Directory
	names NameResolver
	sink  Sink
	log   *slog.Logger
}

func NewNotifier(dir Directory, names NameResolver, sink Sink, log *slog.Logger) *Notifier {
	return &Notifier{dir: dir, names: names, sink: sink, log: log}
}

// BroadcastNew fans a fresh (or reverted) request out to every transporter
// whose work zones contain the request's zone, minus the requester. Plain
// set membership, no ranking.
func (n *Notifier) BroadcastNew(ctx context.Context, req *requests.Request) error {
	eligible, err := n.dir.ListTransportersByZone(ctx, req.ZoneID)
	if err != nil {
		return fmt.Errorf("list transporters: %w", err)
	}

	text := n.renderOffer(ctx, req)
	for _, t := range eligible {
		if t.ID == req.RequesterID {
			continue
		}
		n.deliver(ctx, Message{
			UserID: t.ID,
			Text:   text,
			Buttons: []Button{
				{Label: "✅ Aceptar solicitud", Data: fmt.Sprintf("req:accept:%d", req.ID)},
			},
		})
	}
	return nil
}

// NotifyReservation prompts the requester to confirm or reject within the
// window. Sent to the requester only.
func (n *Notifier) NotifyReservation(ctx context.Context, req *requests.Request) {
	if req.TransporterID == nil {
		return
	}
	t, err := n.dir.GetByID(ctx, *req.TransporterID)
	if err != nil || t == nil {
		n.log.Error("reservation notify: transporter lookup failed", "request", req.ID, "err", err)
		return
	}
	text := fmt.Sprintf(
		"🚚 El transportista %s aceptó tu solicitud #%d.\n"+
			"Tienes %d minutos para confirmar o rechazar.",
		displayName(t), req.ID, int(requests.ConfirmWindow.Minutes()))
	n.deliver(ctx, Message{
		UserID: req.RequesterID,
		Text:   text,
		Buttons: []Button{
			{Label: "✅ Confirmar", Data: fmt.Sprintf("req:confirm:%d", req.ID)},
			{Label: "❌ Rechazar", Data: fmt.Sprintf("req:reject:%d", req.ID)},
		},
	})
}

// NotifyOutcome closes the loop after a confirm, reject or expiry.
// Confirmed: the transporter gets the requester's contact details.
// Rejected: the dropped transporter is told explicitly.
// Expired: the requester is told; the transporter is not (silent requeue).
func (n *Notifier) NotifyOutcome(ctx context.Context, req *requests.Request, transporterID *int64, outcome Outcome) {
	switch outcome {
	case OutcomeConfirmed:
		if transporterID == nil {
			return
		}
		requester, err := n.dir.GetByID(ctx, req.RequesterID)
		if err != nil || requester == nil {
			n.log.Error("outcome notify: requester lookup failed", "request", req.ID, "err", err)
			return
		}
		n.deliver(ctx, Message{
			UserID: *transporterID,
			Text: fmt.Sprintf(
				"🎉 Solicitud #%d confirmada.\nContacto: %s, tel. %s.\nCoordina la recogida directamente.",
				req.ID, displayName(requester), requester.Phone),
		})
	case OutcomeRejected:
		if transporterID != nil {
			n.deliver(ctx, Message{
				UserID: *transporterID,
				Text:   fmt.Sprintf("❌ El solicitante rechazó tu reserva de la solicitud #%d. Vuelve a estar disponible.", req.ID),
			})
		}
	case OutcomeExpired:
		n.deliver(ctx, Message{
			UserID: req.RequesterID,
			Text: fmt.Sprintf(
				"⌛ La reserva de tu solicitud #%d expiró sin confirmación. La solicitud vuelve a estar activa.",
				req.ID),
		})
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	if err := n.sink.Send(ctx, msg); err != nil {
		metrics.NotifyFailures.Inc()
		n.log.Error("notify failed", "user", msg.UserID, "err", err)
	}
}

func (n *Notifier) renderOffer(ctx context.Context, req *requests.Request) string {
	zone := n.names.ResolveName(ctx, req.ZoneID)
	return fmt.Sprintf(
		"📦 Nueva solicitud #%d en %s\n\n"+
			"Vehículo: %s\nCarga: %s\nDescripción: %s\n"+
			"Origen: %s\nDestino: %s\nPresupuesto: %s",
		req.ID, zone,
		req.Payload.VehicleType, req.Payload.CargoType, req.Payload.Description,
		req.Payload.Pickup, req.Payload.Dropoff, req.Payload.Budget)
}

func displayName(u *users.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("usuario %d", u.ID)
}
