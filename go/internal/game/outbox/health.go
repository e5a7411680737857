package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// maxHealthyQueueDepth flags a publisher that is falling behind.
const maxHealthyQueueDepth = 500

type HealthStatus struct {
	Healthy       bool            `json:"healthy"`
	NATSConnected bool            `json:"nats_connected"`
	Counters      CounterSnapshot `json:"counters"`
	Errors        []string        `json:"errors"`
}

// ConnStatus reports broker connectivity. *nats.Conn implements it.
type ConnStatus interface {
	IsConnected() bool
}

type HealthChecker struct {
	counters *Counters
	conn     ConnStatus
}

func NewHealthChecker(counters *Counters, conn ConnStatus) *HealthChecker {
	return &HealthChecker{
		counters: counters,
		conn:     conn,
	}
}

func (h *HealthChecker) Check(_ context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:  true,
		Counters: h.counters.Snapshot(),
		Errors:   []string{},
	}

	// Check NATS connection
	if h.conn != nil {
		status.NATSConnected = h.conn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if depth := status.Counters.QueueDepth; depth > maxHealthyQueueDepth {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("high queue depth: %d", depth))
	}

	return status
}

// HTTP handler helper
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}
