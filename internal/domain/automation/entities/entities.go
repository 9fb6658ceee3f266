package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scope selects how a piece of automation state is partitioned between accounts
type Scope string

const (
	ScopeAccount Scope = "account"
	ScopeGlobal  Scope = "global"
)

// GlobalScopeKey is the blacklist key shared by all accounts in global scope
const GlobalScopeKey int64 = 0

// SlotName returns the broadcast slot name for a slot number
func SlotName(n int) string {
	return fmt.Sprintf("group%d", n)
}

// BroadcastParams holds the message and interval of a broadcast slot
type BroadcastParams struct {
	Message  string `json:"message"`
	Interval int    `json:"interval"`
}

// SpamParams holds the message and interval of a chat spam loop
type SpamParams struct {
	Message  string `json:"message"`
	Interval int    `json:"interval"`
}

// BroadcastSlot is the in-memory view of one (account, slot) pair
type BroadcastSlot struct {
	Running bool             `json:"running"`
	Params  *BroadcastParams `json:"params,omitempty"`
}

// ChatSpam is the in-memory view of one (chat, account) pair
type ChatSpam struct {
	Running bool        `json:"running"`
	Params  *SpamParams `json:"params,omitempty"`
}

// State is a deep copy of all automation state
type State struct {
	Broadcasts  map[int64]map[string]BroadcastSlot `json:"broadcasts"`
	ChatSpams   map[int64]map[int64]ChatSpam       `json:"chat_spams"`
	Blacklists  map[int64][]int64                  `json:"blacklists"`
	AutoReplies map[int64]string                   `json:"auto_replies"`
}

// Document is the persisted JSON layout of the state file.
// Blacklist is either a flat array (global scope) or an object keyed by account.
type Document struct {
	ActiveBroadcasts map[int64]map[string]bool            `json:"active_bc_interval"`
	BroadcastData    map[int64]map[string]BroadcastParams `json:"broadcast_data"`
	AutoReplies      map[int64]string                     `json:"auto_replies"`
	Blacklist        json.RawMessage                      `json:"blacklist"`
	ActiveChatSpams  map[int64]map[int64]bool             `json:"active_groups"`
	SpamData         map[int64]map[int64]SpamParams       `json:"spam_data,omitempty"`
}

// StopAllResult reports what a stop-all request switched off
type StopAllResult struct {
	Broadcasts []string
	ChatSpams  []int64
}

// Status lists running automations of one account
type Status struct {
	AccountID       int64    `json:"account_id"`
	Broadcasts      []string `json:"broadcasts"`
	ChatSpams       []int64  `json:"chat_spams"`
	AutoReplyActive bool     `json:"auto_reply_active"`
	BlacklistSize   int      `json:"blacklist_size"`
}

// Event types published for automation changes
const (
	EventBroadcastStarted = "broadcast.started"
	EventBroadcastStopped = "broadcast.stopped"
	EventBroadcastOneShot = "broadcast.one_shot"
	EventSpamStarted      = "spam.started"
	EventSpamStopped      = "spam.stopped"
	EventSpamFailed       = "spam.failed"
	EventStopAll          = "automation.stop_all"
	EventAutoReplySet     = "auto_reply.set"
)

// Event describes an automation state change
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	AccountID  int64     `json:"account_id"`
	ChatID     int64     `json:"chat_id,omitempty"`
	Slot       string    `json:"slot,omitempty"`
	Interval   int       `json:"interval,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
