package payhere

import (
	"fmt"
	"net/url"
)

// Notification is the decoded wire payload of a gateway settlement
// callback. Fields are kept as the raw strings the gateway signed; mapping
// to internal types happens after the signature checks out.
type Notification struct {
	MerchantID      string
	OrderID         string
	PaymentID       string
	PayhereAmount   string
	PayhereCurrency string
	StatusCode      string
	MD5Sig          string
	Method          string
	StatusMessage   string
	CustomerToken   string
	Custom1         string
	Custom2         string
}

// ParseNotification decodes a form-encoded webhook body into a typed
// notification. Only structural validation happens here; authenticity is
// the signature check's job.
func ParseNotification(form url.Values) (Notification, error) {
	n := Notification{
		MerchantID:      form.Get("merchant_id"),
		OrderID:         form.Get("order_id"),
		PaymentID:       form.Get("payment_id"),
		PayhereAmount:   form.Get("payhere_amount"),
		PayhereCurrency: form.Get("payhere_currency"),
		StatusCode:      form.Get("status_code"),
		MD5Sig:          form.Get("md5sig"),
		Method:          form.Get("method"),
		StatusMessage:   form.Get("status_message"),
		CustomerToken:   form.Get("customer_token"),
		Custom1:         form.Get("custom_1"),
		Custom2:         form.Get("custom_2"),
	}

	for field, value := range map[string]string{
		"merchant_id":      n.MerchantID,
		"order_id":         n.OrderID,
		"payhere_amount":   n.PayhereAmount,
		"payhere_currency": n.PayhereCurrency,
		"status_code":      n.StatusCode,
		"md5sig":           n.MD5Sig,
	} {
		if value == "" {
			return Notification{}, fmt.Errorf("missing required field %s", field)
		}
	}

	return n, nil
}
