package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
)

type moneyBody struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0,cents"`
	Note   string          `json:"note" validate:"max=5"`
}

func TestDecodeJSONBodyValidatesDecimals(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"zero", `{"amount":"0"}`, "amount"},
		{"negative", `{"amount":"-1.50"}`, "amount"},
		{"sub-cent", `{"amount":"10.005"}`, "amount"},
		{"too long", `{"amount":"1","note":"abcdefg"}`, "note"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest moneyBody
			err := DecodeJSONBody(req, &dest)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			assert.Contains(t, typed.Details(), tc.field)
		})
	}
}

func TestDecodeJSONBodyAcceptsValidDecimal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.34"}`))
	var dest moneyBody
	require.NoError(t, DecodeJSONBody(req, &dest))
	assert.Equal(t, "12.34", dest.Amount.StringFixed(2))
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	var dest moneyBody
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestDecodeOptionalJSONBodyAllowsEmpty(t *testing.T) {
	type optional struct {
		Reason string `json:"reason" validate:"max=10"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	var dest optional
	require.NoError(t, DecodeOptionalJSONBody(req, &dest))
	assert.Empty(t, dest.Reason)
}

func TestDecodeJSONBodyReportsFieldLevelDecodeErrors(t *testing.T) {
	type qty struct {
		Quantity int `json:"quantity"`
	}
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"wrong type", `{"quantity":"two"}`, "quantity"},
		{"unknown field", `{"quantity":1,"coupon":"X"}`, "coupon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest qty
			typed := pkgerrors.As(DecodeJSONBody(req, &dest))
			require.NotNil(t, typed)
			assert.Contains(t, typed.Details(), tc.field)
		})
	}
}

func TestDecodeJSONBodyRejectsEmptyTrailingAndOversized(t *testing.T) {
	var dest moneyBody
	for name, body := range map[string]string{
		"empty":     "",
		"trailing":  `{"amount":"1"}{"amount":"2"}`,
		"malformed": `{"amount":`,
		"oversized": `{"amount":"1","note":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
		})
	}
}
