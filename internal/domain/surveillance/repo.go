package surveillance

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-only fetch boundary the report engine depends on.
// Implementations return active (not soft-deleted) rows only.
type Repository interface {
	// GetDisease returns ErrNotFound when the disease is missing or inactive.
	GetDisease(ctx context.Context, id uuid.UUID) (*Disease, error)
	ListPatientVisits(ctx context.Context, q VisitQuery) ([]PatientVisit, error)
	ListPopulations(ctx context.Context, q PopulationQuery) ([]PopulationRecord, error)
	ListActiveHospitals(ctx context.Context) ([]Hospital, error)
}
