package dto

// ConversionRequest attributes an order to a short-link click. Code may
// come from the request body or the attribution cookie.
type ConversionRequest struct {
	Code    string  `json:"code,omitempty"`
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

// ConversionResponse reports whether the conversion was recorded.
// Recorded is false when the code already carries a conversion.
type ConversionResponse struct {
	Recorded bool `json:"recorded"`
}
