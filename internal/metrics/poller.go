// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollAttempts tracks outbound poll requests per peer, by outcome.
	PollAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "poll_attempts_total",
			Help:      "Total number of outbound poll requests, by outcome",
		},
		[]string{"outcome"}, // success, unreachable, error
	)

	// PeerBackoff tracks the current consecutive-failure count per peer.
	PeerBackoff = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "peer_backoff_failures",
			Help:      "Consecutive poll failures recorded for a peer",
		},
		[]string{"peer"},
	)

	// EventsReceived tracks events received via polling, by event type.
	EventsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "events_received_total",
			Help:      "Total number of events received from peers via polling",
		},
		[]string{"event_type"},
	)
)
