package config

import "os"

type Config struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string

	// Gateway merchant settings. The hash secret signs outgoing payment
	// requests and verifies inbound return callbacks.
	VNPTmnCode    string
	VNPHashSecret string
	VNPPayURL     string
	VNPReturnURL  string
	VNPTimezone   string
	VNPLocale     string
}

func Load() Config {
	return Config{
		Addr:          getenv("ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		VNPTmnCode:    os.Getenv("VNP_TMN_CODE"),
		VNPHashSecret: os.Getenv("VNP_HASH_SECRET"),
		VNPPayURL:     getenv("VNP_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		VNPReturnURL:  getenv("VNP_RETURN_URL", "http://localhost:8080/api/v1/payment/return"),
		VNPTimezone:   getenv("VNP_TIMEZONE", "Asia/Ho_Chi_Minh"),
		VNPLocale:     getenv("VNP_LOCALE", "vn"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
