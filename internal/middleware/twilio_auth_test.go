package middleware

import "testing"

// Vector from Twilio's webhook security documentation.
func TestCalculateTwilioSignature(t *testing.T) {
	params := map[string]string{
		"CallSid": "CA1234567890ABCDE",
		"Caller":  "+14158675310",
		"Digits":  "1234",
		"From":    "+14158675310",
		"To":      "+18005551212",
	}

	got := calculateTwilioSignature("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", params)
	want := "RSOYDt4T1cUTdK1PDd93/VVr8B8="
	if got != want {
		t.Fatalf("signature mismatch: got %q, want %q", got, want)
	}
}

func TestCalculateTwilioSignatureSortsParams(t *testing.T) {
	url := "https://example.com/webhook/twilio"
	a := calculateTwilioSignature("token", url, map[string]string{"B": "2", "A": "1"})
	b := calculateTwilioSignature("token", url, map[string]string{"A": "1", "B": "2"})
	if a != b {
		t.Fatal("signature must not depend on map iteration order")
	}
}
