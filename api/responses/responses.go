package responses

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Untyped errors become
// INTERNAL_ERROR with a generic message. Client faults are logged at warn,
// everything else at error with the full chain and any postgres fields.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	code := typed.Code()
	meta := pkgerrors.MetadataFor(code)

	apiErr := types.APIError{
		Code:      string(code),
		Message:   typed.PublicMessage(),
		Retryable: meta.Retryable,
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	if meta.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(meta.RetryAfterSeconds))
	}

	if logg != nil {
		fields := pkgerrors.Dump(typed).Fields()
		fields["http_status"] = meta.HTTPStatus
		if step, ok := stepOf(typed.Details()); ok {
			fields["step"] = step
		}
		logCtx := logg.WithFields(ctx, fields)
		if code.ClientFault() {
			logg.Warn(logCtx, "request.rejected")
		} else {
			logg.Error(logCtx, "request.error", typed)
		}
	}

	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func stepOf(details any) (any, bool) {
	switch d := details.(type) {
	case map[string]any:
		step, ok := d["step"]
		return step, ok
	case map[string]string:
		step, ok := d["step"]
		return step, ok
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already sent; a failed encode only truncates the body.
	_ = json.NewEncoder(w).Encode(payload)
}
