package gateway

import (
	"strings"
	"testing"
	"time"
)

func sampleParams() map[string]string {
	return map[string]string{
		ParamAmount:        "16000000",
		ParamBankCode:      "NCB",
		ParamResponseCode:  "00",
		ParamTransactionNo: "14226112",
		ParamTxnRef:        "6e2d4c1f-order",
		ParamPayDate:       "20250101120000",
		ParamOrderInfo:     "Order 6e2d4c1f-order",
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	c := NewCodec("top-secret")
	params := sampleParams()

	sig := c.Sign(params)
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
	if !c.Verify(params, sig) {
		t.Fatal("signature did not verify against the same parameter set")
	}
	// uppercase hex must verify as well; gateways differ in casing
	if !c.Verify(params, strings.ToUpper(sig)) {
		t.Fatal("uppercase signature should verify")
	}
}

func TestVerify_RejectsTamperedParams(t *testing.T) {
	c := NewCodec("top-secret")
	params := sampleParams()
	sig := c.Sign(params)

	params[ParamAmount] = "15000000"
	if c.Verify(params, sig) {
		t.Fatal("tampered amount must not verify")
	}
}

func TestVerify_RejectsWrongSecretAndEmptySig(t *testing.T) {
	params := sampleParams()
	sig := NewCodec("secret-a").Sign(params)

	if NewCodec("secret-b").Verify(params, sig) {
		t.Fatal("signature from another secret must not verify")
	}
	if NewCodec("secret-a").Verify(params, "") {
		t.Fatal("empty signature must not verify")
	}
}

func TestCanonicalize_IsOrderIndependentAndExcludesHashFields(t *testing.T) {
	c := NewCodec("s")
	params := sampleParams()
	sig := c.Sign(params)

	// same params with hash fields and non-namespace noise present
	withNoise := sampleParams()
	withNoise[ParamSecureHash] = "deadbeef"
	withNoise[ParamSecureHashTyp] = "HmacSHA512"
	withNoise["utm_source"] = "email"
	withNoise["vnp_Empty"] = ""

	if got := c.Sign(withNoise); got != sig {
		t.Fatalf("hash fields, foreign keys and empty values must not affect the signature: %s != %s", got, sig)
	}
}

func TestCanonicalize_QueryEscapesValues(t *testing.T) {
	s := canonicalize(map[string]string{ParamOrderInfo: "Thanh toan don hang"})
	want := ParamOrderInfo + "=Thanh+toan+don+hang"
	if s != want {
		t.Fatalf("expected %q, got %q", want, s)
	}
}

func TestBuildPaymentURL_AppendsHashLast(t *testing.T) {
	c := NewCodec("s")
	u := c.BuildPaymentURL("https://pay.example.com/vpcpay.html", map[string]string{
		ParamAmount: "100",
		ParamTxnRef: "abc",
	})
	if !strings.HasPrefix(u, "https://pay.example.com/vpcpay.html?vnp_Amount=100&vnp_TxnRef=abc&vnp_SecureHash=") {
		t.Fatalf("unexpected url %q", u)
	}
}

func TestParsePayDate_ConvertsFromSourceZone(t *testing.T) {
	loc := LoadLocation("Asia/Ho_Chi_Minh")
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	got := ParsePayDate("20250101120000", loc, now)
	want := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC) // GMT+7 -> UTC
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// The gateway's own zone has no DST, so the conversion is exercised
// across a daylight-saving boundary with a zone that does.
func TestParsePayDate_AcrossDSTBoundary(t *testing.T) {
	loc := LoadLocation("Europe/Berlin")
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	// CET, UTC+1 (before the last Sunday of March 2025)
	winter := ParsePayDate("20250330015959", loc, now)
	if want := time.Date(2025, 3, 30, 0, 59, 59, 0, time.UTC); !winter.Equal(want) {
		t.Fatalf("winter: expected %v, got %v", want, winter)
	}
	// CEST, UTC+2 (after the 02:00 spring-forward)
	summer := ParsePayDate("20250330030000", loc, now)
	if want := time.Date(2025, 3, 30, 1, 0, 0, 0, time.UTC); !summer.Equal(want) {
		t.Fatalf("summer: expected %v, got %v", want, summer)
	}
}

func TestParsePayDate_FallsBackToClock(t *testing.T) {
	loc := LoadLocation("Asia/Ho_Chi_Minh")
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	for _, bad := range []string{"", "not-a-date", "2025-01-01 12:00:00"} {
		if got := ParsePayDate(bad, loc, now); !got.Equal(now) {
			t.Fatalf("input %q: expected clock fallback %v, got %v", bad, now, got)
		}
	}
}

func TestLoadLocation_FallsBackToUTC(t *testing.T) {
	if loc := LoadLocation("Mars/Olympus_Mons"); loc != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC, got %v", loc)
	}
	if loc := LoadLocation(""); loc != time.UTC {
		t.Fatalf("empty zone should fall back to UTC, got %v", loc)
	}
}

func TestFormatPayDate(t *testing.T) {
	loc := LoadLocation("Asia/Ho_Chi_Minh")
	ts := time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)
	if got := FormatPayDate(ts, loc); got != "20250101120000" {
		t.Fatalf("expected 20250101120000, got %s", got)
	}
}
