// Package metrics exposes the Prometheus counters of the access engine.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateDecisions counts command gate outcomes by decision and command.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaler_gate_decisions_total",
		Help: "Command gate decisions by decision kind and command",
	}, []string{"decision", "command"})

	// WorkflowResults counts approval workflow operations by result.
	WorkflowResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaler_workflow_results_total",
		Help: "Approval workflow operations by operation and result",
	}, []string{"operation", "result"})

	// SpamLockouts counts transitions into the locked-out spam level.
	SpamLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaler_spam_lockouts_total",
		Help: "Users automatically locked out by the spam governor",
	})

	// OwnerNotifications counts owner broadcast deliveries by kind and status.
	OwnerNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaler_owner_notifications_total",
		Help: "Owner notifications by kind and delivery status",
	}, []string{"kind", "status"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
