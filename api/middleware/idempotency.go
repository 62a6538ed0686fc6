package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/orderportal/api/responses"
	"github.com/angelmondragon/orderportal/api/validators"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	pkgredis "github.com/angelmondragon/orderportal/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotentReplayHdr  = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 200

	standardReplayTTL = 24 * time.Hour
	moneyReplayTTL    = 7 * 24 * time.Hour
	// pendingLease bounds how long a crashed request can block its key.
	pendingLease = time.Minute
)

type replayRoute struct {
	prefix string
	suffix string
	ttl    time.Duration
}

// Only POST routes participate. An empty suffix means prefix is the full path.
var replayRoutes = []replayRoute{
	{prefix: "/api/v1/balance/requests", ttl: standardReplayTTL},
	{prefix: "/api/v1/admin/orders/", suffix: "/status", ttl: standardReplayTTL},
	{prefix: "/api/v1/checkout", ttl: moneyReplayTTL},
	{prefix: "/api/v1/orders/", suffix: "/cancel", ttl: moneyReplayTTL},
	{prefix: "/api/v1/admin/orders/", suffix: "/cancel", ttl: moneyReplayTTL},
	{prefix: "/api/v1/admin/balance/requests/", suffix: "/resolve", ttl: moneyReplayTTL},
	{prefix: "/api/v1/admin/users/", suffix: "/balance", ttl: moneyReplayTTL},
}

func (r replayRoute) matches(path string) bool {
	if r.suffix == "" {
		return path == r.prefix
	}
	return len(path) > len(r.prefix)+len(r.suffix) &&
		strings.HasPrefix(path, r.prefix) && strings.HasSuffix(path, r.suffix)
}

func replayTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	for _, route := range replayRoutes {
		if route.matches(path) {
			return route.ttl, true
		}
	}
	return 0, false
}

// storedResponse is written twice per key: first as a pending lease with only
// the body hash, then with the captured response once the handler returns.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	BodyHash    string `json:"body_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the first non-5xx response for a repeated
// Idempotency-Key on money-moving routes. A key reused with a different body
// is rejected, and a duplicate that arrives while the first request is still
// running gets a conflict instead of a second execution.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"max_length": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooBig.Limit))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			bodyHash := digest(body)
			key := store.IdempotencyKey(replayScope(r), clientKey)

			lease, _ := json.Marshal(storedResponse{Pending: true, BodyHash: bodyHash})
			acquired, err := store.SetNX(ctx, key, string(lease), pendingLease)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !acquired {
				replayExisting(w, r, store, logg, key, bodyHash)
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}

			final, _ := json.Marshal(storedResponse{
				BodyHash:    bodyHash,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(captured.Bytes()),
			})
			if err := store.Set(ctx, key, string(final), ttl); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.store_failed", err)
			}
		})
	}
}

func replayExisting(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, logg *logger.Logger, key, bodyHash string) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// lease expired between SetNX and Get; the client may retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if stored.BodyHash != bodyHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.Pending {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored response"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(idempotentReplayHdr, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(payload)
}

// replayScope keys on the acting user and the concrete path so two users, or
// two different orders, never share a key.
func replayScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.URL.Path
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
