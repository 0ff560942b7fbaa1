package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

// maxSignatureAge bounds timestamp skew to defeat replayed requests.
const maxSignatureAge = 5 * time.Minute

// Verifier checks request signatures in the v0 HMAC-SHA256 scheme: the
// signature covers "v0:<timestamp>:<raw body>".
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a verifier for the signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify validates the timestamp window and the signature against the raw
// request body. Any failure means the request must be rejected before any
// side effect.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if len(v.secret) == 0 {
		return &domain.AuthError{Reason: "signing secret not configured"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &domain.AuthError{Reason: "malformed timestamp"}
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > maxSignatureAge || age < -maxSignatureAge {
		return &domain.AuthError{Reason: "timestamp outside allowed window"}
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &domain.AuthError{Reason: "signature mismatch"}
	}
	return nil
}
