package outbound

import (
	"context"
	"time"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
)

// MetricsRecorder lets services record metrics without depending on a
// telemetry implementation.
type MetricsRecorder interface {
	// RecordTransition records an orchestrator state change.
	RecordTransition(ctx context.Context, op entity.OperationKind, phase entity.TransactionPhase)

	// RecordPositionsFetched records one aggregation pass.
	RecordPositionsFetched(ctx context.Context, count int, duration time.Duration, err error)
}
