package security

import (
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions(testSecret)

	token, expireAt, err := Generate(opts, "alice", "org1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expireAt) <= 0 {
		t.Fatalf("expireAt in the past: %v", expireAt)
	}

	id, err := Verify(opts, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "alice" || id.OrgID != "org1" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions(testSecret)
	opts.TTL = time.Nanosecond

	token, _, err := Generate(opts, "alice", "org1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, err := Verify(opts, token); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions(testSecret), "alice", "org1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := DefaultOptions([]byte("another-secret-another-secret-ab"))
	if _, err := Verify(other, token); err == nil {
		t.Fatal("token verified under the wrong secret")
	}
}

func TestVerifyRequiresSubject(t *testing.T) {
	opts := DefaultOptions(testSecret)
	token, _, err := Generate(opts, "", "org1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(opts, token); err == nil {
		t.Fatal("token without sub verified")
	}
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: testSecret, Alg: "RS256"}
	if _, _, err := Generate(opts, "alice", "org1"); err == nil {
		t.Fatal("RS256 accepted for HMAC signer")
	}
}
