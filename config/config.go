package config

import (
	"os"
	"strconv"
	"strings"
)

var (
	TLS_DOMAINS  = "" // e.g. "example.com,example2.com"
	MYSQL_DSN    = "" // MySQL will be used if this is set
	SQLITE_FILE  = "" // SQLite will be used if MYSQL_DSN is not configured and this is set
	BIND_ADDRESS = "0.0.0.0:8080"
	DEBUG_MODE   = true

	// External identity provider (JWT issuer + management API)
	AUTH_ISSUER_URL    = "" // e.g. "https://tenant.auth.example.com/"
	AUTH_AUDIENCE      = ""
	IDENTITY_API_URL   = "" // management API base URL, used for email lookup + profiles
	IDENTITY_API_TOKEN = ""

	// Transactional email provider
	EMAIL_API_URL = ""
	EMAIL_API_KEY = ""
	EMAIL_FROM    = "no-reply@example.com"
	APP_BASE_URL  = "http://localhost:3000" // used in invite/magic-link emails

	// Realtime bus. Empty means single-instance in-process delivery only
	REDIS_ADDR     = ""
	REDIS_PASSWORD = ""

	// Signs the guest session cookie
	SESSION_KEY = "change me in production"

	// Object storage. S3 is used when S3_BUCKET is set,
	// otherwise DEFAULT_BUCKET_DIR is used for an initial disk bucket
	S3_BUCKET          = ""
	S3_REGION          = "us-east-1"
	S3_ENDPOINT        = "" // set for S3-compatible stores (MinIO, R2, etc)
	S3_KEY             = ""
	S3_SECRET          = ""
	DEFAULT_BUCKET_DIR = ""
	TMP_DIR            = "/tmp"

	// Minutes within which repeated actor/type/target events collapse
	// into a single counted notification
	NOTIFY_GROUP_WINDOW = 5
)

func init() {
	readEnvString("TLS_DOMAINS", &TLS_DOMAINS)
	readEnvString("MYSQL_DSN", &MYSQL_DSN)
	readEnvString("SQLITE_FILE", &SQLITE_FILE)
	readEnvString("BIND_ADDRESS", &BIND_ADDRESS)
	readEnvBool("DEBUG_MODE", &DEBUG_MODE)
	readEnvString("AUTH_ISSUER_URL", &AUTH_ISSUER_URL)
	readEnvString("AUTH_AUDIENCE", &AUTH_AUDIENCE)
	readEnvString("IDENTITY_API_URL", &IDENTITY_API_URL)
	readEnvString("IDENTITY_API_TOKEN", &IDENTITY_API_TOKEN)
	readEnvString("EMAIL_API_URL", &EMAIL_API_URL)
	readEnvString("EMAIL_API_KEY", &EMAIL_API_KEY)
	readEnvString("EMAIL_FROM", &EMAIL_FROM)
	readEnvString("APP_BASE_URL", &APP_BASE_URL)
	readEnvString("REDIS_ADDR", &REDIS_ADDR)
	readEnvString("REDIS_PASSWORD", &REDIS_PASSWORD)
	readEnvString("SESSION_KEY", &SESSION_KEY)
	readEnvString("S3_BUCKET", &S3_BUCKET)
	readEnvString("S3_REGION", &S3_REGION)
	readEnvString("S3_ENDPOINT", &S3_ENDPOINT)
	readEnvString("S3_KEY", &S3_KEY)
	readEnvString("S3_SECRET", &S3_SECRET)
	readEnvString("DEFAULT_BUCKET_DIR", &DEFAULT_BUCKET_DIR)
	readEnvString("TMP_DIR", &TMP_DIR)
	readEnvInt("NOTIFY_GROUP_WINDOW", &NOTIFY_GROUP_WINDOW)
}

func readEnvString(name string, value *string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	*value = v
}

func readEnvBool(name string, value *bool) {
	v := strings.ToLower(os.Getenv(name))
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		*value = true
	} else if v == "false" || v == "0" || v == "no" || v == "off" {
		*value = false
	}
}

func readEnvInt(name string, value *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*value = f
}
