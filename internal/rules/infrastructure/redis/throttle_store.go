// Package redis offers a Redis-backed throttle store for deployments
// where rule evaluation runs on more than one instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SergFTM/wealth-os-sub013/internal/rules/application"
)

// reserveScript performs the cooldown and daily-cap check-and-update
// atomically on the Redis side. KEYS[1] is the cooldown key, KEYS[2]
// the day counter; ARGV: cooldown ms, max per day, day ttl seconds.
var reserveScript = redis.NewScript(`
if tonumber(ARGV[1]) > 0 and redis.call("EXISTS", KEYS[1]) == 1 then
	return "cooldown"
end
if tonumber(ARGV[2]) > 0 then
	local count = tonumber(redis.call("GET", KEYS[2]) or "0")
	if count >= tonumber(ARGV[2]) then
		return "max_per_day"
	end
end
if tonumber(ARGV[1]) > 0 then
	redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
end
if tonumber(ARGV[2]) > 0 then
	redis.call("INCR", KEYS[2])
	redis.call("EXPIRE", KEYS[2], ARGV[3])
end
return "ok"
`)

// ThrottleStore reserves firing slots in Redis.
type ThrottleStore struct {
	client *redis.Client
	prefix string
}

// NewThrottleStore constructs a throttle store.
func NewThrottleStore(client *redis.Client) (*ThrottleStore, error) {
	if client == nil {
		return nil, errors.New("redis throttle store: nil client")
	}
	return &ThrottleStore{client: client, prefix: "notify:throttle"}, nil
}

// Reserve implements application.ThrottleStore. The Lua script keeps
// the decision atomic across engine instances.
func (t *ThrottleStore) Reserve(ctx context.Context, ruleID, subjectID string, now time.Time, cooldown time.Duration, maxPerDay int) (application.ThrottleDecision, error) {
	dayKey := now.UTC().Format("2006-01-02")
	cooldownKey := fmt.Sprintf("%s:cd:%s:%s", t.prefix, ruleID, subjectID)
	counterKey := fmt.Sprintf("%s:day:%s:%s:%s", t.prefix, ruleID, subjectID, dayKey)

	// Counter keys live until the end of the next UTC day.
	dayTTL := int((48*time.Hour - time.Duration(now.UTC().Hour())*time.Hour) / time.Second)

	result, err := reserveScript.Run(ctx, t.client,
		[]string{cooldownKey, counterKey},
		cooldown.Milliseconds(), maxPerDay, dayTTL).Text()
	if err != nil {
		return application.ThrottleDecision{}, fmt.Errorf("redis throttle reserve: %w", err)
	}
	switch result {
	case "cooldown":
		return application.ThrottleDecision{Reason: application.SuppressCooldown}, nil
	case "max_per_day":
		return application.ThrottleDecision{Reason: application.SuppressDailyCap}, nil
	default:
		return application.ThrottleDecision{Allowed: true}, nil
	}
}
