package checkin

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	payload, err := EncodeToken("abc")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tok, ok := DecodeToken(payload)
	if !ok {
		t.Fatal("decode rejected a token we produced")
	}
	if tok.Type != TokenType || tok.AppointmentID != "abc" {
		t.Fatalf("decoded: %+v", tok)
	}
}

func TestDecodeToken_TrimsIdentifier(t *testing.T) {
	tok, ok := DecodeToken([]byte(`{"type":"frontdesk.checkin","appointment_id":"  abc  "}`))
	if !ok || tok.AppointmentID != "abc" {
		t.Fatalf("decoded: %+v ok=%v", tok, ok)
	}
}

func TestTokenPNG(t *testing.T) {
	png, err := TokenPNG("abc", 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("empty image")
	}
	// PNG magic bytes.
	if png[0] != 0x89 || string(png[1:4]) != "PNG" {
		t.Fatal("not a PNG")
	}
}
