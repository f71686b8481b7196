package subscriptions

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/enums"
)

// AssignPlanInput describes a plan change for one user. TierName is the
// catalog key (free, personal, premium), not the display name.
type AssignPlanInput struct {
	UserID       uuid.UUID
	TierName     string
	BillingCycle enums.BillingCycle
	Metadata     json.RawMessage
}

// AssignPlanResult is the outcome of a plan change: the freshly inserted
// subscription row and the tier it points at.
type AssignPlanResult struct {
	Subscription *models.UserSubscription `json:"subscription"`
	Tier         *models.MembershipTier   `json:"tier"`
}
