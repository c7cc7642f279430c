package session

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// sweptTotal counts expired records removed by background reclamation, by kind.
var sweptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "expired_records_swept_total",
	Help: "Expired records removed by the background sweeper.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(sweptTotal)
}

// Reclaimer removes records of another kind that expired before now. It runs
// on the session sweeper's ticker.
type Reclaimer struct {
	Kind  string
	Sweep func(ctx context.Context, now time.Time) (int64, error)
}

// Sweep deletes every session that expired before now and returns how many
// were removed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		sweptTotal.WithLabelValues("sessions").Add(float64(n))
	}
	return n, nil
}

// RunSweeper calls Sweep, then every reclaimer, each interval until ctx is
// cancelled. It blocks, so start it in its own goroutine.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, extra ...Reclaimer) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx, extra)
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context, extra []Reclaimer) {
	report := func(kind string, n int64, err error) {
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("kind", kind).Msg("sweep failed")
			}
			return
		}
		if n > 0 {
			log.Info().Int64("removed", n).Str("kind", kind).Msg("expired records swept")
		}
	}

	n, err := m.Sweep(ctx)
	report("sessions", n, err)

	now := m.now().UTC()
	for _, r := range extra {
		if r.Sweep == nil {
			continue
		}
		n, err := r.Sweep(ctx, now)
		if err == nil && n > 0 {
			sweptTotal.WithLabelValues(r.Kind).Add(float64(n))
		}
		report(r.Kind, n, err)
	}
}
