package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/api/middleware"
	"github.com/angelmondragon/orderportal/api/responses"
	"github.com/angelmondragon/orderportal/api/validators"
	"github.com/angelmondragon/orderportal/internal/balancerequests"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
)

type depositRequestBody struct {
	Amount           decimal.Decimal `json:"amount" validate:"required,gt=0,cents"`
	ReceiptReference string          `json:"receipt_reference" validate:"required,max=500"`
	Description      string          `json:"description" validate:"max=500"`
}

type resolveRequestBody struct {
	Decision   string `json:"decision" validate:"required,oneof=approve reject"`
	AdminNotes string `json:"admin_notes" validate:"max=1000"`
}

type adjustBalanceBody struct {
	Amount      decimal.Decimal `json:"amount" validate:"required,cents"`
	Description string          `json:"description" validate:"required,max=500"`
}

// BalanceSummary returns the caller's balance and ledger totals.
func BalanceSummary(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// BalanceTransactions pages through the caller's ledger, optionally filtered by type.
func BalanceTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := ledger.ListParams{UserID: actor.UserID, Limit: limit, Cursor: cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			params.Type = &txType
		}

		list, err := svc.ListTransactions(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presentTransactions(list.Items, list.Cursor))
	}
}

func CreateDepositRequest(svc balancerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body depositRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Request(r.Context(), actor, balancerequests.RequestInput{
			Amount:           body.Amount,
			ReceiptReference: validators.SanitizeString(body.ReceiptReference, 500),
			Description:      validators.SanitizeString(body.Description, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, presentBalanceRequest(*request))
	}
}

func ListMyDepositRequests(svc balancerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListMine(r.Context(), actor, balancerequests.ListParams{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presentBalanceRequests(list.Requests, list.NextCursor))
	}
}

// AdminPendingDepositRequests returns the review queue, newest first.
func AdminPendingDepositRequests(svc balancerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, cursor, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListPending(r.Context(), actor, balancerequests.ListParams{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presentBalanceRequests(list.Requests, list.NextCursor))
	}
}

func AdminResolveDepositRequest(svc balancerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body resolveRequestBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := enums.ParseRequestDecision(body.Decision)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid decision"))
			return
		}
		result, err := svc.Resolve(r.Context(), actor, requestID, decision, validators.SanitizeString(body.AdminNotes, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminAdjustBalance applies a signed correction to a user's balance without a deposit request.
func AdminAdjustBalance(svc balancerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adjustBalanceBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AdjustDirect(r.Context(), actor, balancerequests.AdjustInput{
			UserID:      userID,
			Amount:      body.Amount,
			Description: validators.SanitizeString(body.Description, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
