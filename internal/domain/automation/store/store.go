// Package store owns the in-memory automation state and its durable document
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain/automation/deps"
	"github.com/dapen17/vps1/internal/domain/automation/entities"
	automationerrors "github.com/dapen17/vps1/internal/domain/automation/errors"
)

// Policy selects how slots and blacklists are shared between accounts
type Policy struct {
	BlacklistScope entities.Scope
	SlotScope      entities.Scope
}

// Store is the automation state store. All methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	broadcastRunning map[int64]map[string]bool
	broadcastParams  map[int64]map[string]entities.BroadcastParams
	spamRunning      map[int64]map[int64]bool // chatID -> accountID
	spamParams       map[int64]map[int64]entities.SpamParams
	blacklist        map[int64]map[int64]struct{} // scopeKey -> chatIDs
	autoReplies      map[int64]string

	// persistMu serializes snapshot+write so a later persist never loses to an earlier one
	persistMu sync.Mutex

	repo   deps.StateRepository
	policy Policy
	logger zerolog.Logger
}

// New creates an empty store backed by repo
func New(repo deps.StateRepository, policy Policy, logger zerolog.Logger) *Store {
	if policy.BlacklistScope == "" {
		policy.BlacklistScope = entities.ScopeAccount
	}
	if policy.SlotScope == "" {
		policy.SlotScope = entities.ScopeAccount
	}

	s := &Store{
		repo:   repo,
		policy: policy,
		logger: logger.With().Str("component", "automation_store").Logger(),
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.broadcastRunning = make(map[int64]map[string]bool)
	s.broadcastParams = make(map[int64]map[string]entities.BroadcastParams)
	s.spamRunning = make(map[int64]map[int64]bool)
	s.spamParams = make(map[int64]map[int64]entities.SpamParams)
	s.blacklist = make(map[int64]map[int64]struct{})
	s.autoReplies = make(map[int64]string)
}

// Policy returns the sharing policy of the store
func (s *Store) Policy() Policy {
	return s.policy
}

// BlacklistScopeKey returns the blacklist key that applies to an account
func (s *Store) BlacklistScopeKey(accountID int64) int64 {
	if s.policy.BlacklistScope == entities.ScopeGlobal {
		return entities.GlobalScopeKey
	}
	return accountID
}

// IsChatSpamRunning reports whether spam is running for the pair
func (s *Store) IsChatSpamRunning(chatID, accountID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spamRunning[chatID][accountID]
}

// SetChatSpamRunning sets the spam flag of the pair
func (s *Store) SetChatSpamRunning(chatID, accountID int64, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSpamRunningLocked(chatID, accountID, running)
}

func (s *Store) setSpamRunningLocked(chatID, accountID int64, running bool) {
	if s.spamRunning[chatID] == nil {
		s.spamRunning[chatID] = make(map[int64]bool)
	}
	s.spamRunning[chatID][accountID] = running
}

// GetChatSpamParams returns stored spam parameters of the pair
func (s *Store) GetChatSpamParams(chatID, accountID int64) (entities.SpamParams, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.spamParams[chatID][accountID]
	return p, ok
}

// StartChatSpam stores params and flips the flag, unless spam is already running
func (s *Store) StartChatSpam(chatID, accountID int64, params entities.SpamParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spamRunning[chatID][accountID] {
		return automationerrors.ErrSpamAlreadyRunning
	}

	if s.spamParams[chatID] == nil {
		s.spamParams[chatID] = make(map[int64]entities.SpamParams)
	}
	s.spamParams[chatID][accountID] = params
	s.setSpamRunningLocked(chatID, accountID, true)
	return nil
}

// StopChatSpam clears the flag and reports whether it was set
func (s *Store) StopChatSpam(chatID, accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.spamRunning[chatID][accountID] {
		return false
	}
	s.spamRunning[chatID][accountID] = false
	return true
}

// IsBroadcastRunning reports whether the slot is running
func (s *Store) IsBroadcastRunning(accountID int64, slot string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcastRunning[accountID][slot]
}

// SetBroadcastRunning sets the running flag of a slot
func (s *Store) SetBroadcastRunning(accountID int64, slot string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBroadcastRunningLocked(accountID, slot, running)
}

func (s *Store) setBroadcastRunningLocked(accountID int64, slot string, running bool) {
	if s.broadcastRunning[accountID] == nil {
		s.broadcastRunning[accountID] = make(map[string]bool)
	}
	s.broadcastRunning[accountID][slot] = running
}

// SetBroadcastParams overwrites the message and interval of a slot
func (s *Store) SetBroadcastParams(accountID int64, slot, message string, intervalSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBroadcastParamsLocked(accountID, slot, entities.BroadcastParams{Message: message, Interval: intervalSeconds})
}

func (s *Store) setBroadcastParamsLocked(accountID int64, slot string, params entities.BroadcastParams) {
	if s.broadcastParams[accountID] == nil {
		s.broadcastParams[accountID] = make(map[string]entities.BroadcastParams)
	}
	s.broadcastParams[accountID][slot] = params
}

// GetBroadcastParams returns the message and interval of a slot
func (s *Store) GetBroadcastParams(accountID int64, slot string) (entities.BroadcastParams, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.broadcastParams[accountID][slot]
	return p, ok
}

// StartBroadcast stores params and flips the slot on in one step.
// A running slot is rejected and left untouched.
func (s *Store) StartBroadcast(accountID int64, slot string, params entities.BroadcastParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broadcastRunning[accountID][slot] {
		return automationerrors.ErrBroadcastRunning
	}

	if s.policy.SlotScope == entities.ScopeGlobal {
		for other, slots := range s.broadcastRunning {
			if other != accountID && slots[slot] {
				return automationerrors.ErrSlotTaken
			}
		}
	}

	s.setBroadcastParamsLocked(accountID, slot, params)
	s.setBroadcastRunningLocked(accountID, slot, true)
	return nil
}

// StopBroadcast clears the slot flag and reports whether it was set
func (s *Store) StopBroadcast(accountID int64, slot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.broadcastRunning[accountID][slot] {
		return false
	}
	s.broadcastRunning[accountID][slot] = false
	return true
}

// AddToBlacklist adds a chat to the blacklist of a scope
func (s *Store) AddToBlacklist(scopeKey, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blacklist[scopeKey] == nil {
		s.blacklist[scopeKey] = make(map[int64]struct{})
	}
	s.blacklist[scopeKey][chatID] = struct{}{}
}

// RemoveFromBlacklist removes a chat and reports whether it was present
func (s *Store) RemoveFromBlacklist(scopeKey, chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[scopeKey][chatID]; !ok {
		return false
	}
	delete(s.blacklist[scopeKey], chatID)
	return true
}

// IsBlacklisted reports whether a chat is blacklisted in a scope
func (s *Store) IsBlacklisted(scopeKey, chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[scopeKey][chatID]
	return ok
}

// SetAutoReply sets the auto-reply text of an account. Empty disables it.
func (s *Store) SetAutoReply(accountID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoReplies[accountID] = text
}

// GetAutoReply returns the auto-reply text of an account
func (s *Store) GetAutoReply(accountID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoReplies[accountID]
}

// StopAll switches off everything the account owns: its broadcast slots and
// their parameters, its spam toggles, its auto-reply and the blacklist of its scope.
// It does not persist.
func (s *Store) StopAll(accountID int64) entities.StopAllResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result entities.StopAllResult

	for slot, running := range s.broadcastRunning[accountID] {
		if running {
			result.Broadcasts = append(result.Broadcasts, slot)
		}
		s.broadcastRunning[accountID][slot] = false
	}
	delete(s.broadcastParams, accountID)

	for chatID, accounts := range s.spamRunning {
		running, ok := accounts[accountID]
		if !ok {
			continue
		}
		if running {
			result.ChatSpams = append(result.ChatSpams, chatID)
		}
		accounts[accountID] = false
		delete(s.spamParams[chatID], accountID)
		if len(s.spamParams[chatID]) == 0 {
			delete(s.spamParams, chatID)
		}
	}

	s.autoReplies[accountID] = ""
	delete(s.blacklist, s.BlacklistScopeKey(accountID))

	sort.Strings(result.Broadcasts)
	sort.Slice(result.ChatSpams, func(i, j int) bool { return result.ChatSpams[i] < result.ChatSpams[j] })
	return result
}

// RunningBroadcasts returns the running slots of an account, sorted
func (s *Store) RunningBroadcasts(accountID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := make([]string, 0)
	for slot, running := range s.broadcastRunning[accountID] {
		if running {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots
}

// RunningChatSpams returns the chats where the account is spamming, sorted
func (s *Store) RunningChatSpams(accountID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]int64, 0)
	for chatID, accounts := range s.spamRunning {
		if accounts[accountID] {
			chats = append(chats, chatID)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats
}

// Status summarizes the automations of an account
func (s *Store) Status(accountID int64) entities.Status {
	status := entities.Status{
		AccountID:  accountID,
		Broadcasts: s.RunningBroadcasts(accountID),
		ChatSpams:  s.RunningChatSpams(accountID),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	status.AutoReplyActive = s.autoReplies[accountID] != ""
	status.BlacklistSize = len(s.blacklist[s.BlacklistScopeKey(accountID)])
	return status
}

// Snapshot returns a deep copy of the whole state
func (s *Store) Snapshot() entities.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := entities.State{
		Broadcasts:  make(map[int64]map[string]entities.BroadcastSlot),
		ChatSpams:   make(map[int64]map[int64]entities.ChatSpam),
		Blacklists:  make(map[int64][]int64),
		AutoReplies: make(map[int64]string, len(s.autoReplies)),
	}

	slotOf := func(accountID int64, slot string) entities.BroadcastSlot {
		if state.Broadcasts[accountID] == nil {
			state.Broadcasts[accountID] = make(map[string]entities.BroadcastSlot)
		}
		return state.Broadcasts[accountID][slot]
	}
	for accountID, slots := range s.broadcastRunning {
		for slot, running := range slots {
			b := slotOf(accountID, slot)
			b.Running = running
			state.Broadcasts[accountID][slot] = b
		}
	}
	for accountID, slots := range s.broadcastParams {
		for slot, params := range slots {
			b := slotOf(accountID, slot)
			p := params
			b.Params = &p
			state.Broadcasts[accountID][slot] = b
		}
	}

	spamOf := func(chatID, accountID int64) entities.ChatSpam {
		if state.ChatSpams[chatID] == nil {
			state.ChatSpams[chatID] = make(map[int64]entities.ChatSpam)
		}
		return state.ChatSpams[chatID][accountID]
	}
	for chatID, accounts := range s.spamRunning {
		for accountID, running := range accounts {
			c := spamOf(chatID, accountID)
			c.Running = running
			state.ChatSpams[chatID][accountID] = c
		}
	}
	for chatID, accounts := range s.spamParams {
		for accountID, params := range accounts {
			c := spamOf(chatID, accountID)
			p := params
			c.Params = &p
			state.ChatSpams[chatID][accountID] = c
		}
	}

	for key, chats := range s.blacklist {
		if len(chats) == 0 {
			continue
		}
		state.Blacklists[key] = sortedIDs(chats)
	}

	for accountID, text := range s.autoReplies {
		state.AutoReplies[accountID] = text
	}

	return state
}

// Persist writes the full state to the repository, replacing the previous document
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	doc, err := s.document()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode automation state")
		return err
	}

	if err := s.repo.Save(ctx, doc); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist automation state")
		return err
	}

	return nil
}

func (s *Store) document() (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := &entities.Document{
		ActiveBroadcasts: make(map[int64]map[string]bool, len(s.broadcastRunning)),
		BroadcastData:    make(map[int64]map[string]entities.BroadcastParams, len(s.broadcastParams)),
		AutoReplies:      make(map[int64]string, len(s.autoReplies)),
		ActiveChatSpams:  make(map[int64]map[int64]bool, len(s.spamRunning)),
		SpamData:         make(map[int64]map[int64]entities.SpamParams, len(s.spamParams)),
	}

	for accountID, slots := range s.broadcastRunning {
		doc.ActiveBroadcasts[accountID] = make(map[string]bool, len(slots))
		for slot, running := range slots {
			doc.ActiveBroadcasts[accountID][slot] = running
		}
	}
	for accountID, slots := range s.broadcastParams {
		doc.BroadcastData[accountID] = make(map[string]entities.BroadcastParams, len(slots))
		for slot, params := range slots {
			doc.BroadcastData[accountID][slot] = params
		}
	}
	for accountID, text := range s.autoReplies {
		doc.AutoReplies[accountID] = text
	}
	for chatID, accounts := range s.spamRunning {
		doc.ActiveChatSpams[chatID] = make(map[int64]bool, len(accounts))
		for accountID, running := range accounts {
			doc.ActiveChatSpams[chatID][accountID] = running
		}
	}
	for chatID, accounts := range s.spamParams {
		doc.SpamData[chatID] = make(map[int64]entities.SpamParams, len(accounts))
		for accountID, params := range accounts {
			doc.SpamData[chatID][accountID] = params
		}
	}

	var (
		raw []byte
		err error
	)
	if s.policy.BlacklistScope == entities.ScopeGlobal {
		raw, err = json.Marshal(sortedIDs(s.blacklist[entities.GlobalScopeKey]))
	} else {
		perAccount := make(map[int64][]int64, len(s.blacklist))
		for key, chats := range s.blacklist {
			if len(chats) > 0 {
				perAccount[key] = sortedIDs(chats)
			}
		}
		raw, err = json.Marshal(perAccount)
	}
	if err != nil {
		return nil, fmt.Errorf("encode blacklist: %w", err)
	}
	doc.Blacklist = raw

	return doc, nil
}

// Restore replaces the in-memory state with the stored document.
// A missing or unreadable document leaves the store empty; the error is only logged.
func (s *Store) Restore(ctx context.Context) {
	doc, err := s.repo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()

	if errors.Is(err, deps.ErrStateNotFound) {
		s.logger.Info().Msg("No automation state stored, starting empty")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load automation state, starting empty")
		return
	}
	if doc == nil {
		return
	}

	for accountID, slots := range doc.ActiveBroadcasts {
		for slot, running := range slots {
			s.setBroadcastRunningLocked(accountID, slot, running)
		}
	}
	for accountID, slots := range doc.BroadcastData {
		for slot, params := range slots {
			s.setBroadcastParamsLocked(accountID, slot, params)
		}
	}
	for accountID, text := range doc.AutoReplies {
		s.autoReplies[accountID] = text
	}
	for chatID, accounts := range doc.ActiveChatSpams {
		for accountID, running := range accounts {
			s.setSpamRunningLocked(chatID, accountID, running)
		}
	}
	for chatID, accounts := range doc.SpamData {
		for accountID, params := range accounts {
			if s.spamParams[chatID] == nil {
				s.spamParams[chatID] = make(map[int64]entities.SpamParams)
			}
			s.spamParams[chatID][accountID] = params
		}
	}

	if err := s.restoreBlacklistLocked(doc.Blacklist); err != nil {
		s.logger.Error().Err(err).Msg("Failed to decode blacklist, starting with an empty blacklist")
		s.blacklist = make(map[int64]map[int64]struct{})
	}

	s.logger.Info().
		Int("accounts_with_broadcasts", len(s.broadcastRunning)).
		Int("spam_chats", len(s.spamRunning)).
		Int("auto_replies", len(s.autoReplies)).
		Int("blacklist_scopes", len(s.blacklist)).
		Msg("Automation state restored")
}

func (s *Store) restoreBlacklistLocked(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	add := func(key, chatID int64) {
		if s.blacklist[key] == nil {
			s.blacklist[key] = make(map[int64]struct{})
		}
		s.blacklist[key][chatID] = struct{}{}
	}

	if raw[0] == '[' {
		var flat []int64
		if err := json.Unmarshal(raw, &flat); err != nil {
			return err
		}
		for _, chatID := range flat {
			add(entities.GlobalScopeKey, chatID)
		}
		return nil
	}

	var perAccount map[int64][]int64
	if err := json.Unmarshal(raw, &perAccount); err != nil {
		return err
	}
	for key, chats := range perAccount {
		if s.policy.BlacklistScope == entities.ScopeGlobal {
			key = entities.GlobalScopeKey
		}
		for _, chatID := range chats {
			add(key, chatID)
		}
	}
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
