// Package sink implements the three downstream branch consumers. Each sink
// accepts enriched records behind a common interface so the dispatch path
// can be tested against mocks without real I/O.
package sink

import (
	"context"

	"vehicle-telematics/processing/internal/domain"
)

type RecordSink interface {
	Branch() domain.Branch
	Deliver(ctx context.Context, rec *domain.EnrichedRecord) error
	Close() error
}
