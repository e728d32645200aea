package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReservationsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveshop_reservations_granted_total",
		Help: "Holds granted against the inventory ledger.",
	})
	ReservationsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveshop_reservations_denied_total",
		Help: "Holds denied for insufficient availability.",
	})
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveshop_reservations_expired_total",
		Help: "Holds released by the expiry sweep.",
	})
	OrdersCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveshop_orders_committed_total",
		Help: "Orders durably committed by checkout.",
	})
	CarouselBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveshop_carousel_broadcasts_total",
		Help: "Carousel snapshots fanned out to viewers.",
	})
	ConnectedViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "liveshop_connected_viewers",
		Help: "Approximate viewers connected per live session.",
	}, []string{"session_id"})
)

func Handler() http.Handler { return promhttp.Handler() }
