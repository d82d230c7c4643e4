// internal/app/features/webhooks/signature.go
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix ms>, v1=<hex hmac>".
const SignatureHeader = "WorkOS-Signature"

// DefaultTolerance is how far the signed timestamp may drift from now.
const DefaultTolerance = 3 * time.Minute

var (
	ErrMissingSignature   = errors.New("webhook signature: header missing")
	ErrMalformedSignature = errors.New("webhook signature: malformed header")
	ErrSignatureMismatch  = errors.New("webhook signature: mismatch")
	ErrSignatureExpired   = errors.New("webhook signature: timestamp outside tolerance")
)

// VerifySignature checks header against body. The MAC is HMAC-SHA256 over
// "<t>.<body>" keyed with secret.
func VerifySignature(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 {
		return errors.New("webhook signature: secret is empty")
	}
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrMalformedSignature
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrMalformedSignature, err)
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformedSignature, err)
	}

	if !hmac.Equal(got, computeMAC(secret, ts, body)) {
		return ErrSignatureMismatch
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	drift := now.Sub(time.UnixMilli(ms))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return ErrSignatureExpired
	}
	return nil
}

// Sign returns a header value for body signed at t.
func Sign(secret, body []byte, t time.Time) string {
	ts := strconv.FormatInt(t.UnixMilli(), 10)
	return "t=" + ts + ", v1=" + hex.EncodeToString(computeMAC(secret, ts, body))
}

func computeMAC(secret []byte, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
