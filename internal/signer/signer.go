// Package signer computes the x-signature header Kubera verifies on every
// API request.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/ynab-kubera-sync/internal/syncerr"
)

// Sign returns the lowercase hex HMAC-SHA256 of apiKey+timestamp+method+path+body
// keyed with secret. body is empty for GET requests and the exact JSON payload
// for POST requests.
func Sign(apiKey, secret string, timestamp int64, method, path string, body []byte) (string, error) {
	if err := Validate(secret, method, path); err != nil {
		return "", err
	}

	var msg strings.Builder
	msg.WriteString(apiKey)
	msg.WriteString(strconv.FormatInt(timestamp, 10))
	msg.WriteString(method)
	msg.WriteString(path)
	msg.Write(body)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg.String()))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Validate checks that the signer inputs are well-formed.
func Validate(secret, method, path string) error {
	if secret == "" {
		return syncerr.Signature("Sign", "secret is empty")
	}
	switch method {
	case http.MethodGet, http.MethodPost:
	default:
		return syncerr.Signature("Sign", "unsupported method %q", method)
	}
	if !strings.HasPrefix(path, "/") {
		return syncerr.Signature("Sign", "path %q must start with /", path)
	}
	return nil
}
