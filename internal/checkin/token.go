package checkin

import (
	"encoding/json"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// TokenType discriminates check-in payloads from whatever other codes a
// scanner may pick up in the room.
const TokenType = "frontdesk.checkin"

// Token is the scannable payload identifying an appointment for check-in.
// It carries no signature and no expiry: anyone who can copy the code can
// replay it. Known limitation, accepted for now.
type Token struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointment_id"`
}

func EncodeToken(appointmentID string) ([]byte, error) {
	return json.Marshal(Token{Type: TokenType, AppointmentID: appointmentID})
}

// DecodeToken parses a scanned payload. It reports ok=false for anything
// that is not a well-formed check-in token; callers are expected to ignore
// those scans without surfacing an error.
func DecodeToken(payload []byte) (Token, bool) {
	var t Token
	if err := json.Unmarshal(payload, &t); err != nil {
		return Token{}, false
	}
	if t.Type != TokenType {
		return Token{}, false
	}
	t.AppointmentID = strings.TrimSpace(t.AppointmentID)
	if t.AppointmentID == "" {
		return Token{}, false
	}
	return t, true
}

// TokenPNG renders the token as a QR code at error-correction level High,
// which holds up under the variable lighting of a reception desk.
func TokenPNG(appointmentID string, size int) ([]byte, error) {
	payload, err := EncodeToken(appointmentID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(string(payload), qrcode.High, size)
}
