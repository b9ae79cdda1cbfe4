package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	PublicBaseURL  string   // used to build the payment callback URL
	AllowedOrigins []string // CORS allowed origins
	TrustedProxies []string // CIDRs whose X-Forwarded-For hops are believed

	CounterBackend string // memory | redis | dynamo
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	S3BucketName   string
	PresignTTL     time.Duration

	JWTScriptSecret string
	JWTHTTPSecret   string
	JWTExpiryDays   int
	CookieSecret    string

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	ZarinpalMerchantID string
	ZarinpalSandbox    bool
	GatewayTimeout     time.Duration
	CheckoutRPS        float64
	CheckoutBurst      int
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users    string
	Products string
	Payments string
	Counters string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		CounterBackend: getEnv("COUNTER_BACKEND", "memory"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:    getEnv("DYNAMO_TABLE_USERS", "users"),
			Products: getEnv("DYNAMO_TABLE_PRODUCTS", "products"),
			Payments: getEnv("DYNAMO_TABLE_PAYMENTS", "payments"),
			Counters: getEnv("DYNAMO_TABLE_COUNTERS", "counters"),
		},
		S3BucketName: getEnv("S3_BUCKET_NAME", "go-shop-files"),
		PresignTTL:   getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),

		JWTScriptSecret: getEnv("JWT_SCRIPT_SECRET", "dev-script-secret"),
		JWTHTTPSecret:   getEnv("JWT_HTTP_SECRET", "dev-http-secret"),
		JWTExpiryDays:   getEnvInt("JWT_EXPIRY_DAYS", 30),
		CookieSecret:    getEnv("COOKIE_SECRET", "dev-cookie-secret"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SNSRegion:    getEnv("SNS_REGION", "us-east-1"),

		ZarinpalMerchantID: getEnv("ZARINPAL_MERCHANT_ID", ""),
		ZarinpalSandbox:    getEnvBool("ZARINPAL_SANDBOX", true),
		GatewayTimeout:     getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		CheckoutRPS:        getEnvFloat("CHECKOUT_RPS", 1),
		CheckoutBurst:      getEnvInt("CHECKOUT_BURST", 5),
	}
}

// IsProduction gates real code dispatch and the cookie rate limiter.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
