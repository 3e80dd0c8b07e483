// Package payment builds UPI payment payloads and renders scannable
// codes for the buyer's device.
package payment

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// UPIParams describe one payment request.
type UPIParams struct {
	PayeeAddress string  // virtual payment address (pa)
	PayeeName    string  // display name (pn)
	Amount       float64 // rupees, rendered with two decimals (am)
	Note         string  // free-text transaction note (tn)
}

// URI renders the upi://pay deep link for the request. Currency is
// always INR.
func URI(p UPIParams) string {
	q := url.Values{}
	q.Set("pa", p.PayeeAddress)
	q.Set("pn", p.PayeeName)
	q.Set("am", fmt.Sprintf("%.2f", p.Amount))
	if p.Note != "" {
		q.Set("tn", p.Note)
	}
	q.Set("cu", "INR")
	return "upi://pay?" + q.Encode()
}

// QRPNG renders any payload (a UPI link or an order identifier) as a PNG
// QR code of the given pixel size.
func QRPNG(payload string, size int) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
