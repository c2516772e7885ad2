// Package qrpass encodes and decodes the event pass carried in a registrant's QR code.
package qrpass

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"eventgate/internal/apperr"
)

// Version is the schema version written into new passes.
const Version = 1

// ImageSize is the edge length of rendered QR images in pixels.
const ImageSize = 300

var (
	darkColor  = color.RGBA{R: 0x2c, G: 0x3e, B: 0x50, A: 0xff}
	lightColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Payload is the data encoded into a pass.
type Payload struct {
	Version   int       `json:"v"`
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds a current-version payload for a registrant.
func New(id int64, name, email string, now time.Time) Payload {
	return Payload{
		Version:   Version,
		ID:        id,
		Name:      name,
		Email:     email,
		Timestamp: now.UTC().Truncate(time.Second),
	}
}

// Encode returns the JSON text stored in the QR code.
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PNG renders the payload as a QR image.
func (p Payload) PNG() ([]byte, error) {
	text, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return Render(text)
}

// Render draws text as a PNG QR code with medium error correction.
func Render(text string) ([]byte, error) {
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	qr.ForegroundColor = darkColor
	qr.BackgroundColor = lightColor

	var buf bytes.Buffer
	if err := qr.Write(ImageSize, &buf); err != nil {
		return nil, fmt.Errorf("qr render: %w", err)
	}
	return buf.Bytes(), nil
}

// rawPayload accepts the id either as a JSON number or a numeric string.
type rawPayload struct {
	Version *int            `json:"v"`
	ID      json.RawMessage `json:"id"`
}

var errFormat = apperr.New(apperr.Validation, "Invalid QR code format")

// Parse extracts the registration id from scanned QR text.
//
// Accepted inputs are a versioned payload, a legacy JSON object without a
// version whose id is a number or numeric string, and a bare decimal id.
func Parse(data string) (int64, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return 0, apperr.New(apperr.Validation, "QR code data is required")
	}

	if strings.HasPrefix(data, "{") {
		var raw rawPayload
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return 0, errFormat
		}
		if raw.Version != nil && *raw.Version != Version {
			return 0, errFormat
		}
		return parseID(raw.ID)
	}

	// legacy: bare id
	id, err := strconv.ParseInt(data, 10, 64)
	if err != nil || id <= 0 {
		return 0, errFormat
	}
	return id, nil
}

func parseID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, errFormat
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, errFormat
		}
	} else {
		text = string(raw)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || id <= 0 {
		return 0, errFormat
	}
	return id, nil
}
