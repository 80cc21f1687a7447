package model

import "strconv"

// Metadata item names the gateway is known to send.
const (
	MetaReceiptNumber    = "MpesaReceiptNumber"
	MetaPhoneNumber      = "PhoneNumber"
	MetaAmount           = "Amount"
	MetaAccountReference = "AccountReference"
)

// CallbackEnvelope is the gateway's STK result notification. Field names
// are dictated by the wire format.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	STKCallback *STKCallback `json:"stkCallback"`
}

// STKCallback carries the push outcome. ResultCode is a pointer so a
// missing code is distinguishable from 0 and maps to Failed.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *int              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

func (c *STKCallback) Succeeded() bool {
	return c.ResultCode != nil && *c.ResultCode == 0
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are heterogeneous on the wire: the receipt number is
// a string while amount and phone number arrive as JSON numbers.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// Flatten maps item names to values; a repeated name keeps the last value.
// Safe on a nil receiver (callbacks for failed pushes omit the metadata).
func (m *CallbackMetadata) Flatten() map[string]any {
	out := make(map[string]any)
	if m == nil {
		return out
	}
	for _, item := range m.Item {
		out[item.Name] = item.Value
	}
	return out
}

// MetaString reads a metadata value as a string. Numeric values (the
// gateway sends phone numbers as JSON numbers) are formatted without an
// exponent.
func MetaString(meta map[string]any, name string) string {
	v, ok := meta[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func MetaFloat(meta map[string]any, name string) float64 {
	v, ok := meta[name]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// CallbackAck is the gateway-mandated acknowledgment body. ResultCode 0
// stops redelivery, anything else invites a retry.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
