package utils

import qrcode "github.com/skip2/go-qrcode"

// QREncoder matches qrcode.Encode so callers can swap it in tests.
type QREncoder func(content string, level qrcode.RecoveryLevel, size int) ([]byte, error)

// TicketQR renders a ticket code as a PNG.
func TicketQR(ticketID string, size int, encode QREncoder) ([]byte, error) {
	if encode == nil {
		encode = qrcode.Encode
	}
	if size <= 0 {
		size = 256
	}
	return encode(ticketID, qrcode.Medium, size)
}
