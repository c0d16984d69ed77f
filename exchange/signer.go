package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNING
// ═══════════════════════════════════════════════════════════════════════════════
//
// ACCESS-SIGN = base64(HMAC-SHA256(secret, timestamp + METHOD + requestPath + body))
//
// requestPath carries the sorted, unencoded query string for GETs. body is the
// exact JSON sent on the wire for POSTs and empty otherwise.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PreHash builds the message that gets signed
func PreHash(timestamp int64, method, requestPath, body string) string {
	return strconv.FormatInt(timestamp, 10) + strings.ToUpper(method) + requestPath + body
}

// Sign returns the base64 HMAC-SHA256 of message under secret
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignRequest signs a REST request
func SignRequest(secret string, timestamp int64, method, requestPath, body string) string {
	return Sign(secret, PreHash(timestamp, method, requestPath, body))
}

// QueryString serializes params sorted by key, joined as k=v with '&', without
// percent-encoding. Returns "" for no params, otherwise a leading '?'.
func QueryString(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
