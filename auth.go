package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	accessTokenTTL  = 30 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// tokenSecret signs bearer tokens. Set once from config at startup.
var tokenSecret []byte

var (
	errTokenInvalid = errors.New("invalid token")
	errTokenExpired = errors.New("expired token")
)

func signPayload(payload string) string {
	h := hmac.New(sha256.New, tokenSecret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func issueToken(uid uuid.UUID, typ string, ttl time.Duration) string {
	exp := time.Now().Add(ttl).Unix()
	payload := uid.String() + ":" + strconv.FormatInt(exp, 10) + ":" + typ
	token := payload + "." + signPayload(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(token))
}

func issueTokenPair(uid uuid.UUID) (access, refresh string) {
	return issueToken(uid, tokenTypeAccess, accessTokenTTL),
		issueToken(uid, tokenTypeRefresh, refreshTokenTTL)
}

// verifyToken checks signature, expiry, and token type. It is a pure
// function of the token bytes and the clock; no I/O.
func verifyToken(tok, typ string) (uuid.UUID, error) {
	data, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return uuid.Nil, errTokenInvalid
	}
	payload, sig, ok := strings.Cut(string(data), ".")
	if !ok {
		return uuid.Nil, errTokenInvalid
	}
	if !hmac.Equal([]byte(signPayload(payload)), []byte(sig)) {
		return uuid.Nil, errTokenInvalid
	}
	fields := strings.Split(payload, ":")
	if len(fields) != 3 {
		return uuid.Nil, errTokenInvalid
	}
	uidStr, expStr, tokType := fields[0], fields[1], fields[2]
	if tokType != typ {
		return uuid.Nil, errTokenInvalid
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return uuid.Nil, errTokenInvalid
	}
	if time.Now().Unix() > exp {
		return uuid.Nil, errTokenExpired
	}
	uid, err := uuid.FromString(uidStr)
	if err != nil {
		return uuid.Nil, errTokenInvalid
	}
	return uid, nil
}

// authenticate is the connection-time gate for the relay. No credential
// admits the connection anonymously; a credential that does not verify
// must reject the connection before it reaches a room.
func authenticate(token string) (string, error) {
	if token == "" {
		return "anonymous", nil
	}
	uid, err := verifyToken(token, tokenTypeAccess)
	if err != nil {
		return "", err
	}
	return uid.String(), nil
}
