package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vehicle-telematics/processing/internal/domain"
)

func TestRoute(t *testing.T) {
	t.Run("storage is unconditional", func(t *testing.T) {
		rec := &domain.EnrichedRecord{}
		assert.Equal(t, []domain.Branch{domain.BranchStorage}, Route(rec))
	})

	t.Run("maintenance feed on maintenance required", func(t *testing.T) {
		rec := &domain.EnrichedRecord{MaintenanceRequired: true}
		assert.ElementsMatch(t,
			[]domain.Branch{domain.BranchStorage, domain.BranchMaintenanceFeed},
			Route(rec))
	})

	t.Run("maintenance feed on anomaly alone", func(t *testing.T) {
		rec := &domain.EnrichedRecord{AnomalyDetected: true}
		assert.ElementsMatch(t,
			[]domain.Branch{domain.BranchStorage, domain.BranchMaintenanceFeed},
			Route(rec))
	})

	t.Run("ad eligible record goes to exactly storage and ad feed", func(t *testing.T) {
		rec := &domain.EnrichedRecord{AdTargetingEligible: true}
		assert.ElementsMatch(t,
			[]domain.Branch{domain.BranchStorage, domain.BranchAdFeed},
			Route(rec))
	})

	t.Run("all three branches", func(t *testing.T) {
		rec := &domain.EnrichedRecord{
			MaintenanceRequired: true,
			AdTargetingEligible: true,
			AnomalyDetected:     true,
		}
		assert.Len(t, Route(rec), 3)
	})

	t.Run("pure: same record routes identically twice", func(t *testing.T) {
		rec := &domain.EnrichedRecord{MaintenanceRequired: true, AdTargetingEligible: true}
		assert.Equal(t, Route(rec), Route(rec))
	})
}
