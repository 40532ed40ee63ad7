package enums

import "fmt"

// PaymentGateway identifies which external processor handled a payment.
type PaymentGateway string

const (
	PaymentGatewayFlow        PaymentGateway = "flow"
	PaymentGatewayMercadoPago PaymentGateway = "mercadopago"
	PaymentGatewayPayPal      PaymentGateway = "paypal"
	PaymentGatewayNOWPayments PaymentGateway = "nowpayments"
)

var validPaymentGateways = []PaymentGateway{
	PaymentGatewayFlow,
	PaymentGatewayMercadoPago,
	PaymentGatewayPayPal,
	PaymentGatewayNOWPayments,
}

// String implements fmt.Stringer.
func (g PaymentGateway) String() string {
	return string(g)
}

// IsValid reports whether the gateway is recognized.
func (g PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParsePaymentGateway converts a raw string into a PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	for _, candidate := range validPaymentGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}

// PaymentGateways returns the closed set of supported gateways.
func PaymentGateways() []PaymentGateway {
	out := make([]PaymentGateway, len(validPaymentGateways))
	copy(out, validPaymentGateways)
	return out
}
