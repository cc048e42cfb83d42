package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_requests_created_total",
		Help: "Requests created by requesters.",
	})

	ReservationsWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_reservations_won_total",
		Help: "Successful reservations (transporter won the race).",
	})

	ReservationsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_reservations_lost_total",
		Help: "Reservation attempts against a request that was no longer available.",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_reservations_expired_total",
		Help: "Reservations reverted by the sweeper after the confirmation window.",
	})

	RequestsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_requests_confirmed_total",
		Help: "Requests confirmed by their requester.",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notify_failures_total",
		Help: "Outbound notifications that could not be delivered.",
	})
)
