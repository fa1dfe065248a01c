package pipeline

import "vehicle-telematics/processing/internal/domain"

// Route decides which downstream branches receive a record. Pure function:
// storage is unconditional, the maintenance feed takes records flagged for
// maintenance or anomaly, the ad feed takes ad-eligible records.
func Route(rec *domain.EnrichedRecord) []domain.Branch {
	branches := []domain.Branch{domain.BranchStorage}
	if rec.MaintenanceRequired || rec.AnomalyDetected {
		branches = append(branches, domain.BranchMaintenanceFeed)
	}
	if rec.AdTargetingEligible {
		branches = append(branches, domain.BranchAdFeed)
	}
	return branches
}
