package affiliate

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// ReferralLink builds the storefront URL carrying an affiliate's promo code.
func ReferralLink(baseURL, code string) string {
	return fmt.Sprintf("%s?ref=%s", baseURL, url.QueryEscape(code))
}

// ReferralQR renders the referral link as a PNG QR code, sized in pixels.
// Affiliates embed it in offline promotions.
func ReferralQR(baseURL, code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(ReferralLink(baseURL, code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render referral qr: %w", err)
	}
	return png, nil
}
