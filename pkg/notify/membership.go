package notify

import "github.com/google/uuid"

// Membership is a read-only household membership row.
type Membership struct {
	HouseholdID uuid.UUID
	UserID      uuid.UUID
	Active      bool
}
