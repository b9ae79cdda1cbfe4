// Package logger builds the process zap logger and a few field helpers.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a console development logger
// when production is false. Callers are recorded on every entry.
func New(production bool) (*zap.Logger, error) {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build(zap.AddCaller())
}

// Email logs an address with the local part masked: "alice@x.com" -> "a***@x.com".
func Email(key, email string) zap.Field {
	return zap.String(key, MaskEmail(email))
}

// IP logs an address with its last segment masked.
func IP(key, ip string) zap.Field {
	return zap.String(key, MaskIP(ip))
}

func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

func MaskIP(ip string) string {
	if i := strings.LastIndexAny(ip, ".:"); i > 0 {
		return ip[:i+1] + "x"
	}
	return "x"
}
