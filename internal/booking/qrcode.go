package booking

import (
	"github.com/skip2/go-qrcode"
)

const qrPayloadPrefix = "PASSCULTURE:v3;TOKEN:"

// QRPayload is the text encoded in a booking countermark.
func QRPayload(token string) string {
	return qrPayloadPrefix + token
}

type QRGenerator struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{size: size, level: qrcode.Medium}
}

// PNG renders the countermark of a booking token.
func (q *QRGenerator) PNG(token string) ([]byte, error) {
	return qrcode.Encode(QRPayload(token), q.level, q.size)
}
