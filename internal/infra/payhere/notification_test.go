package payhere

import (
	"net/url"
	"testing"
)

func notificationForm() url.Values {
	return url.Values{
		"merchant_id":      {"1211149"},
		"order_id":         {"ORD-42"},
		"payment_id":       {"320025"},
		"payhere_amount":   {"2500.00"},
		"payhere_currency": {"LKR"},
		"status_code":      {"2"},
		"md5sig":           {"ABCDEF"},
		"method":           {"VISA"},
		"status_message":   {"Successfully completed"},
		"customer_token":   {"tok-abc"},
	}
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification(notificationForm())
	if err != nil {
		t.Fatalf("ParseNotification() error = %v", err)
	}

	if n.OrderID != "ORD-42" {
		t.Errorf("order id = %s, want ORD-42", n.OrderID)
	}
	if n.PayhereAmount != "2500.00" {
		t.Errorf("amount = %s, want 2500.00", n.PayhereAmount)
	}
	if n.StatusCode != "2" {
		t.Errorf("status code = %s, want 2", n.StatusCode)
	}
	if n.CustomerToken != "tok-abc" {
		t.Errorf("customer token = %s, want tok-abc", n.CustomerToken)
	}
}

func TestParseNotificationMissingFields(t *testing.T) {
	required := []string{
		"merchant_id",
		"order_id",
		"payhere_amount",
		"payhere_currency",
		"status_code",
		"md5sig",
	}

	for _, field := range required {
		t.Run(field, func(t *testing.T) {
			form := notificationForm()
			form.Del(field)
			if _, err := ParseNotification(form); err == nil {
				t.Errorf("ParseNotification() without %s succeeded, want error", field)
			}
		})
	}

	// Optional fields may be absent
	form := notificationForm()
	form.Del("customer_token")
	form.Del("method")
	if _, err := ParseNotification(form); err != nil {
		t.Errorf("ParseNotification() without optional fields error = %v", err)
	}
}
