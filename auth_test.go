package main

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	tokenSecret = []byte("test-secret")
	uid := uuid.Must(uuid.NewV4())

	access, refresh := issueTokenPair(uid)

	got, err := verifyToken(access, tokenTypeAccess)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if got != uid {
		t.Fatalf("expected %s, got %s", uid, got)
	}

	got, err = verifyToken(refresh, tokenTypeRefresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if got != uid {
		t.Fatalf("expected %s, got %s", uid, got)
	}
}

func TestTokenTypeMismatch(t *testing.T) {
	tokenSecret = []byte("test-secret")
	uid := uuid.Must(uuid.NewV4())

	access, refresh := issueTokenPair(uid)
	if _, err := verifyToken(access, tokenTypeRefresh); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := verifyToken(refresh, tokenTypeAccess); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	tokenSecret = []byte("test-secret")
	uid := uuid.Must(uuid.NewV4())

	tok := issueToken(uid, tokenTypeAccess, -time.Minute)
	if _, err := verifyToken(tok, tokenTypeAccess); !errors.Is(err, errTokenExpired) {
		t.Fatalf("expected errTokenExpired, got %v", err)
	}
}

func TestTokenTampered(t *testing.T) {
	tokenSecret = []byte("test-secret")
	uid := uuid.Must(uuid.NewV4())

	tok := issueToken(uid, tokenTypeAccess, accessTokenTTL)
	raw, _ := base64.RawURLEncoding.DecodeString(tok)
	raw[0] ^= 0xFF
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	if _, err := verifyToken(tampered, tokenTypeAccess); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("expected errTokenInvalid, got %v", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	tokenSecret = []byte("test-secret")
	for _, tok := range []string{"", "garbage", "%%%", base64.RawURLEncoding.EncodeToString([]byte("no-dot"))} {
		if _, err := verifyToken(tok, tokenTypeAccess); err == nil {
			t.Fatalf("token %q accepted", tok)
		}
	}
}

func TestTokenWrongSecret(t *testing.T) {
	tokenSecret = []byte("secret-one")
	uid := uuid.Must(uuid.NewV4())
	tok := issueToken(uid, tokenTypeAccess, accessTokenTTL)

	tokenSecret = []byte("secret-two")
	if _, err := verifyToken(tok, tokenTypeAccess); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("token verified across secrets: %v", err)
	}
}

func TestAuthenticateAnonymous(t *testing.T) {
	user, err := authenticate("")
	if err != nil {
		t.Fatalf("anonymous rejected: %v", err)
	}
	if user != "anonymous" {
		t.Fatalf("expected anonymous identity, got %q", user)
	}
}

func TestAuthenticateBadToken(t *testing.T) {
	tokenSecret = []byte("test-secret")
	if _, err := authenticate("bogus"); err == nil {
		t.Fatal("expected bad credential to be rejected")
	}
}
