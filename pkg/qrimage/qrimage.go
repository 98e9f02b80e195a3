// Package qrimage renders token payloads as scannable QR images.
package qrimage

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Renderer produces a scannable image for a token payload. Session creation
// must not fail when rendering fails; callers treat errors as non-fatal.
type Renderer interface {
	Render(payload string) (string, error)
}

// PNGRenderer renders QR codes as base64 PNG data URIs, ready for an <img> src.
type PNGRenderer struct {
	Size int // pixels per side; defaults to 256
}

// NewPNGRenderer creates a PNG QR renderer.
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{Size: defaultSize}
}

// Render encodes payload into a QR PNG and returns it as a data URI.
func (r *PNGRenderer) Render(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("empty payload")
	}
	size := r.Size
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Low, size)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
