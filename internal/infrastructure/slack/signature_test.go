package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func signBody(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func fixedVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_770_000_000, 0)
	v := fixedVerifier("secret", now)

	body := []byte("payload=%7B%22type%22%3A%22block_actions%22%7D")
	ts := strconv.FormatInt(now.Unix(), 10)

	if err := v.Verify(ts, signBody("secret", ts, body), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_770_000_000, 0)
	v := fixedVerifier("secret", now)

	body := []byte("payload=x")
	ts := strconv.FormatInt(now.Unix(), 10)

	if err := v.Verify(ts, signBody("other", ts, body), body); err == nil {
		t.Fatal("signature from wrong secret accepted")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_770_000_000, 0)
	v := fixedVerifier("secret", now)

	ts := strconv.FormatInt(now.Unix(), 10)
	sig := signBody("secret", ts, []byte("payload=original"))

	if err := v.Verify(ts, sig, []byte("payload=tampered")); err == nil {
		t.Fatal("tampered body accepted")
	}
}

func TestVerifyRejectsOldTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_770_000_000, 0)
	v := fixedVerifier("secret", now)

	old := now.Add(-6 * time.Minute)
	ts := strconv.FormatInt(old.Unix(), 10)
	body := []byte("payload=x")

	if err := v.Verify(ts, signBody("secret", ts, body), body); err == nil {
		t.Fatal("stale timestamp accepted")
	}
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_770_000_000, 0)
	v := fixedVerifier("secret", now)

	future := now.Add(6 * time.Minute)
	ts := strconv.FormatInt(future.Unix(), 10)
	body := []byte("payload=x")

	if err := v.Verify(ts, signBody("secret", ts, body), body); err == nil {
		t.Fatal("future timestamp accepted")
	}
}

func TestVerifyRejectsMalformedTimestamp(t *testing.T) {
	t.Parallel()

	v := fixedVerifier("secret", time.Now())
	if err := v.Verify("yesterday", "v0=abc", []byte("x")); err == nil {
		t.Fatal("malformed timestamp accepted")
	}
}

func TestVerifyRejectsWithoutSecret(t *testing.T) {
	t.Parallel()

	v := fixedVerifier("", time.Now())
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	if err := v.Verify(ts, "v0=abc", []byte("x")); err == nil {
		t.Fatal("verification without secret accepted")
	}
}
