// Package billing は決済プロバイダーのWebhook検証と課金状態の更新を提供する。
package billing

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

// SignatureHeader は署名が送られるHTTPヘッダー名。
const SignatureHeader = "Stripe-Signature"

var (
	// ErrMissingSignature は署名ヘッダーがないことを表す。
	ErrMissingSignature = errors.New("missing signature header")
	// ErrMalformedSignature は署名ヘッダーを解析できないことを表す。
	ErrMalformedSignature = errors.New("malformed signature header")
	// ErrSignatureMismatch はどのv1署名とも一致しないことを表す。
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrTimestampOutOfTolerance は署名時刻が許容範囲外であることを表す。
	ErrTimestampOutOfTolerance = errors.New("timestamp outside tolerance")
)

// VerifySignature は生のリクエストボディに対する署名を検証する。
// ヘッダー形式は "t=<unix秒>,v1=<hex>[,v1=<hex>...]" で、
// 署名対象は "<t>.<body>" のHMAC-SHA256。toleranceが0以下の場合は時刻を検証しない。
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		signedAt := time.Unix(timestamp, 0)
		if d := now.Sub(signedAt); d > tolerance || d < -tolerance {
			return ErrTimestampOutOfTolerance
		}
	}

	expected := computeSignature(payload, timestamp, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// SignPayload はテストやローカル検証用に署名ヘッダー値を生成する。
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(payload, ts, secret))
}

func computeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp int64
		haveTS    bool
		sigs      []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			timestamp, haveTS = ts, true
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if !haveTS || len(sigs) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return timestamp, sigs, nil
}
