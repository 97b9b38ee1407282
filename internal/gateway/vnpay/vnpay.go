// Package vnpay holds the VNPay IPN vocabulary: parameter names, the signed
// transaction reference and the acknowledgement codes the gateway expects.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	ParamTxnRef         = "vnp_TxnRef"
	ParamAmount         = "vnp_Amount"
	ParamResponseCode   = "vnp_ResponseCode"
	ParamTransactionNo  = "vnp_TransactionNo"
	ParamSecureHash     = "vnp_SecureHash"
	ParamSecureHashType = "vnp_SecureHashType"

	ResponseCodeSuccess = "00"
)

var ErrInvalidTxnRef = errors.New("invalid vnp_TxnRef")

// TxnRef is the merchant reference sent to the gateway: "{logId}_{suffix}".
type TxnRef struct {
	LogID  int64
	Suffix string
}

// ParseTxnRef reads the transaction log id from the first "_" segment.
// A bare id without suffix is accepted.
func ParseTxnRef(raw string) (TxnRef, error) {
	idPart, suffix, _ := strings.Cut(raw, "_")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return TxnRef{}, fmt.Errorf("%w: %q", ErrInvalidTxnRef, raw)
	}
	return TxnRef{LogID: id, Suffix: suffix}, nil
}

func (r TxnRef) String() string {
	if r.Suffix == "" {
		return strconv.FormatInt(r.LogID, 10)
	}
	return strconv.FormatInt(r.LogID, 10) + "_" + r.Suffix
}

// Sign computes the hex HMAC-SHA512 of the canonical query string: fields
// sorted by name, empty values and the hash fields skipped, names and values
// URL-encoded.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == ParamSecureHash || k == ParamSecureHashType || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params[k]))
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether params carry a valid vnp_SecureHash.
func Verify(params map[string]string, secret string) bool {
	got := strings.ToLower(params[ParamSecureHash])
	if got == "" {
		return false
	}
	want := Sign(params, secret)
	return hmac.Equal([]byte(got), []byte(want))
}

// Ack is the JSON body returned to the gateway for every IPN call.
type Ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

const (
	RspConfirmSuccess   = "00"
	RspOrderNotFound    = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidChecksum  = "97"
	RspUnknownError     = "99"
)

var (
	AckConfirmSuccess   = Ack{RspCode: RspConfirmSuccess, Message: "Confirm Success"}
	AckOrderNotFound    = Ack{RspCode: RspOrderNotFound, Message: "Order not found"}
	AckAlreadyConfirmed = Ack{RspCode: RspAlreadyConfirmed, Message: "Order already confirmed"}
	AckInvalidAmount    = Ack{RspCode: RspInvalidAmount, Message: "Invalid amount"}
	AckInvalidChecksum  = Ack{RspCode: RspInvalidChecksum, Message: "Invalid Checksum"}
	AckUnknownError     = Ack{RspCode: RspUnknownError, Message: "Unknown error"}
)
