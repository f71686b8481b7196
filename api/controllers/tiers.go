package controllers

import (
	"context"
	"net/http"

	"github.com/martagiraldo/promptstash-backend/api/responses"
	"github.com/martagiraldo/promptstash-backend/pkg/db/models"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

// TierService is the catalog surface the tier handlers need.
type TierService interface {
	List(ctx context.Context) ([]models.MembershipTier, error)
}

// TierList serves the public tier catalog for pricing pages.
func TierList(svc TierService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tiers, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, tiers)
	}
}
