package config

import (
	"os"
	"strings"
	"time"
)

// BatchRemainderPolicy names where the unallocated part of a batch payment goes at validation
// when the invoice term lines do not cover it.
//
// Set via env:
// - BANKREC_BATCH_REMAINDER_POLICY=receivable|suspense|writeoff
//
// Empty means unset; validation then refuses to post a remainder.
func BatchRemainderPolicy() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("BANKREC_BATCH_REMAINDER_POLICY")))
}

// WidgetSessionTTL is how long an untouched widget session survives in redis.
// BANKREC_SESSION_TTL_MINUTES, default 120.
func WidgetSessionTTL() time.Duration {
	return time.Duration(intFromEnv("BANKREC_SESSION_TTL_MINUTES", 120)) * time.Minute
}

// OutboxDispatchEnabled turns the background publisher off for local runs without Pub/Sub.
// OUTBOX_DISPATCH_ENABLED=false disables it.
func OutboxDispatchEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DISPATCH_ENABLED")))
	return !(v == "0" || v == "false" || v == "no" || v == "n")
}
