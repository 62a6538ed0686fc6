package controllers

import (
	"net/http"

	"github.com/angelmondragon/orderportal/api/middleware"
	"github.com/angelmondragon/orderportal/api/responses"
	"github.com/angelmondragon/orderportal/api/validators"
	"github.com/angelmondragon/orderportal/internal/checkout"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
)

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=balance cash card"`
	Notes         string `json:"notes" validate:"max=1000"`
}

// Checkout converts the caller's cart into an order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkoutRequest
		if err := validators.DecodeOptionalJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), actor, checkout.CreateOrderInput{
			PaymentMethod: enums.PaymentMethod(body.PaymentMethod),
			Notes:         validators.SanitizeString(body.Notes, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
