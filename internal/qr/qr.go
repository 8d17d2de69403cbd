// Package qr builds the payment QR code an operator displays in their vehicle.
package qr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/naulify/naulify/internal/profile"
)

// DefaultSize is the rendered QR code width and height in pixels.
const DefaultSize = 250

// Instruction is printed under the code on the poster.
const Instruction = "A printed copy should be clearly displayed inside your vehicle."

var ErrInvalidPayload = errors.New("invalid qr payload")

// Payload is what the commuter web app reads out of the code.
type Payload struct {
	PSVID string `json:"psvId"`
	Plate string `json:"plate"`
}

// PayURL returns the commuter payment link for the operator's vehicle.
func PayURL(base string, p profile.Profile) (string, error) {
	raw, err := json.Marshal(Payload{PSVID: p.UID, Plate: p.VehicleRegistration})
	if err != nil {
		return "", err
	}
	data := base64.StdEncoding.EncodeToString(raw)
	return strings.TrimRight(base, "/") + "/pay?data=" + url.QueryEscape(data), nil
}

// DecodePayload reverses PayURL's data parameter.
func DecodePayload(data string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.PSVID == "" {
		return Payload{}, fmt.Errorf("%w: missing psvId", ErrInvalidPayload)
	}
	return p, nil
}

// PNG renders content as a QR code image. A non-positive size uses
// DefaultSize.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

var posterTemplate = template.Must(template.New("poster").Parse(`<!DOCTYPE html>
<html>
  <head><meta charset="utf-8"><title>{{.Plate}}</title></head>
  <body style="font-family: sans-serif; text-align: center; padding: 40px;">
    <h1 style="font-size: 24px;">Scan this code to pay fare for:</h1>
    <h2 style="font-size: 32px; margin: 20px 0;">{{.Plate}}</h2>
    <img src="{{.Image}}" width="80%" style="max-width: 400px;" alt="Payment QR code"/>
    <p style="margin-top: 40px; font-size: 16px;">{{.Instruction}}</p>
  </body>
</html>
`))

// Poster renders the printable sheet for the operator's vehicle.
func Poster(base string, p profile.Profile) ([]byte, error) {
	link, err := PayURL(base, p)
	if err != nil {
		return nil, err
	}
	img, err := PNG(link, DefaultSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = posterTemplate.Execute(&buf, struct {
		Plate       string
		Image       template.URL
		Instruction string
	}{
		Plate:       p.VehicleRegistration,
		Image:       template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(img)),
		Instruction: Instruction,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
