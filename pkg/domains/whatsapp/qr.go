package whatsapp

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// RenderQR encodes a pairing payload as a PNG data URL that a browser can display directly.
func RenderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
