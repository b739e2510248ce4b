package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Reserved parameter namespace and well-known keys of the VNPay return
// protocol. Only keys under the prefix participate in signing.
const (
	ParamPrefix = "vnp_"

	ParamVersion       = "vnp_Version"
	ParamCommand       = "vnp_Command"
	ParamTmnCode       = "vnp_TmnCode"
	ParamAmount        = "vnp_Amount"
	ParamCurrCode      = "vnp_CurrCode"
	ParamTxnRef        = "vnp_TxnRef"
	ParamOrderInfo     = "vnp_OrderInfo"
	ParamOrderType     = "vnp_OrderType"
	ParamLocale        = "vnp_Locale"
	ParamIPAddr        = "vnp_IpAddr"
	ParamReturnURL     = "vnp_ReturnUrl"
	ParamCreateDate    = "vnp_CreateDate"
	ParamBankCode      = "vnp_BankCode"
	ParamResponseCode  = "vnp_ResponseCode"
	ParamTransactionNo = "vnp_TransactionNo"
	ParamPayDate       = "vnp_PayDate"
	ParamSecureHash    = "vnp_SecureHash"
	ParamSecureHashTyp = "vnp_SecureHashType"
)

// Response codes the handler branches on. "00" is the only success code;
// everything else fails the payment.
const (
	CodeSuccess       = "00"
	CodeUserCancelled = "24"
)

// Codec signs outgoing payment requests and verifies inbound return
// callbacks with the same canonicalization, so the two directions can
// never drift apart.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// canonicalize builds the hash data string: every non-empty parameter
// under the reserved prefix except the hash fields themselves, sorted
// byte-wise by key, each key and value query-escaped, joined as k=v
// pairs with '&'. This matches the gateway's documented encoding.
func canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if !strings.HasPrefix(k, ParamPrefix) {
			continue
		}
		if k == ParamSecureHash || k == ParamSecureHashTyp {
			continue
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical parameter
// string.
func (c *Codec) Sign(params map[string]string) string {
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(canonicalize(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over params and compares it to the
// presented one in constant time.
func (c *Codec) Verify(params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	want := c.Sign(params)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(want))
}

// BuildPaymentURL assembles the redirect URL for an outgoing payment
// request: canonical query string plus the secure hash appended last.
func (c *Codec) BuildPaymentURL(baseURL string, params map[string]string) string {
	query := canonicalize(params)
	sig := c.Sign(params)
	return baseURL + "?" + query + "&" + ParamSecureHash + "=" + sig
}
