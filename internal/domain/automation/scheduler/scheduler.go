package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dapen17/vps1/internal/domain/automation/entities"
)

// BroadcastState is the part of the state store read by broadcast loops
type BroadcastState interface {
	IsBroadcastRunning(accountID int64, slot string) bool
	SetBroadcastRunning(accountID int64, slot string, running bool)
	GetBroadcastParams(accountID int64, slot string) (entities.BroadcastParams, bool)
	IsBlacklisted(scopeKey, chatID int64) bool
	BlacklistScopeKey(accountID int64) int64
}

// SpamState is the part of the state store read by chat spam loops
type SpamState interface {
	IsChatSpamRunning(chatID, accountID int64) bool
	SetChatSpamRunning(chatID, accountID int64, running bool)
	GetChatSpamParams(chatID, accountID int64) (entities.SpamParams, bool)
}

// Reporter receives loop outcomes. Implementations must not block for long.
type Reporter interface {
	BroadcastCycle(ctx context.Context, accountID int64, slot string, stats CycleStats)
	BroadcastAborted(ctx context.Context, accountID int64, slot string, reason error)
	OneShotFinished(ctx context.Context, accountID int64, stats CycleStats)
	ChatSpamSent(ctx context.Context, accountID, chatID int64)
	ChatSpamFailed(ctx context.Context, accountID, chatID int64, reason error)
	RateLimited(ctx context.Context, accountID int64, wait time.Duration)
}

// CycleStats counts the outcome of one pass over the account's chats
type CycleStats struct {
	Sent    int
	Skipped int
	Failed  int
}

// Config holds loop tuning
type Config struct {
	// MaxFloodWait caps how long a loop waits on a single flood-wait
	MaxFloodWait time.Duration
	// IntervalUnit is the duration of one interval unit, a second outside tests
	IntervalUnit time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxFloodWait <= 0 {
		c.MaxFloodWait = 10 * time.Minute
	}
	if c.IntervalUnit <= 0 {
		c.IntervalUnit = time.Second
	}
	return c
}

// BroadcastKey is the task key of a broadcast slot
func BroadcastKey(accountID int64, slot string) string {
	return fmt.Sprintf("%s%s", AccountPrefix(accountID), "broadcast:"+slot)
}

// SpamKey is the task key of a chat spam loop
func SpamKey(accountID, chatID int64) string {
	return fmt.Sprintf("%sspam:%d", AccountPrefix(accountID), chatID)
}

// AccountPrefix is the common key prefix of all tasks of an account
func AccountPrefix(accountID int64) string {
	return fmt.Sprintf("account:%d:", accountID)
}

func capWait(wait, max time.Duration) time.Duration {
	if wait > max {
		return max
	}
	return wait
}
