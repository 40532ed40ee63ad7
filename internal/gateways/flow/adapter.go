// Package flow adapts Flow (flow.cl) payment confirmations.
package flow

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Stefan-migo/opticore-backend/internal/gateways"
	"github.com/Stefan-migo/opticore-backend/pkg/config"
	pkgerrors "github.com/Stefan-migo/opticore-backend/pkg/errors"
	"github.com/Stefan-migo/opticore-backend/pkg/enums"
)

// SignatureParam is the form parameter Flow signs its requests with.
const SignatureParam = "s"

type Adapter struct {
	secretKey  string
	production bool
}

func NewAdapter(cfg config.FlowConfig, production bool) *Adapter {
	return &Adapter{secretKey: cfg.SecretKey, production: production}
}

func (a *Adapter) Gateway() enums.PaymentGateway {
	return enums.PaymentGatewayFlow
}

// VerifySignature checks Flow's parameter signature: HMAC-SHA256 over the
// form parameters sorted alphabetically by name and concatenated as
// name immediately followed by value, excluding the `s` parameter itself.
func (a *Adapter) VerifySignature(req gateways.Request) gateways.SignatureResult {
	if a.secretKey == "" {
		if a.production {
			return gateways.SignatureResult{Reason: gateways.ReasonNoSecret}
		}
		return gateways.SignatureResult{Valid: true, Skipped: true, Reason: gateways.ReasonNoSecret}
	}

	params, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return gateways.SignatureResult{Reason: gateways.ReasonMalformedHeader}
	}
	received := strings.TrimSpace(params.Get(SignatureParam))
	if received == "" {
		return gateways.SignatureResult{Reason: gateways.ReasonMissingSignature}
	}

	expected := gateways.HMACSHA256Hex(a.secretKey, []byte(signableString(params)))
	if !gateways.DigestsEqual(expected, strings.ToLower(received)) {
		return gateways.SignatureResult{Reason: gateways.ReasonSignatureMismatch}
	}
	return gateways.SignatureResult{Valid: true}
}

func signableString(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == SignatureParam {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(params.Get(key))
	}
	return b.String()
}

// Normalize converts a Flow confirmation into the internal event shape.
//
// Flow identifies a payment by the confirmation token and numbers deliveries
// per status, so the idempotency key is `<token>:<status>`. The join key is
// commerceOrder (the merchant reference supplied at payment creation),
// falling back to the token when absent.
func (a *Adapter) Normalize(req gateways.Request) (*gateways.Event, error) {
	params, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode flow confirmation")
	}

	token := strings.TrimSpace(params.Get("token"))
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flow confirmation missing token")
	}

	status := strings.TrimSpace(params.Get("status"))
	intentID := strings.TrimSpace(params.Get("commerceOrder"))
	if intentID == "" {
		intentID = token
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(params.Get("amount")); raw != "" {
		parsed, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "parse flow amount")
		}
		amount = parsed
	}

	currency := strings.ToUpper(strings.TrimSpace(params.Get("currency")))
	if currency == "" {
		currency = "CLP"
	}

	event := &gateways.Event{
		Gateway:                enums.PaymentGatewayFlow,
		GatewayEventID:         fmt.Sprintf("%s:%s", token, status),
		Type:                   "payment.status." + status,
		Status:                 mapStatus(status),
		GatewayTransactionID:   strings.TrimSpace(params.Get("flowOrder")),
		GatewayPaymentIntentID: intentID,
		Amount:                 amount,
		Currency:               currency,
		Metadata: map[string]any{
			"token": token,
			"payer": params.Get("payer"),
			"media": params.Get("media"),
		},
	}
	return event, nil
}

// mapStatus is total over Flow's numeric status vocabulary: 1 pending,
// 2 paid, 3 rejected, 4 annulled. Unknown values stay pending.
func mapStatus(status string) enums.PaymentStatus {
	switch status {
	case "2":
		return enums.PaymentStatusSucceeded
	case "3", "4":
		return enums.PaymentStatusFailed
	case "1":
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusPending
	}
}
