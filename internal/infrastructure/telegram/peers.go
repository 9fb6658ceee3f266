package telegram

import (
	"sync"

	"github.com/gotd/td/tg"

	"github.com/dapen17/vps1/internal/domain"
)

// channelIDOffset shifts channel ids into the marked range used by the Bot API
const channelIDOffset int64 = 1000000000000

// markPeer converts an MTProto peer into a single signed chat id:
// users keep their id, basic groups are negated, channels are -100<id>.
func markPeer(p tg.PeerClass) (int64, bool) {
	switch peer := p.(type) {
	case *tg.PeerUser:
		return peer.UserID, true
	case *tg.PeerChat:
		return -peer.ChatID, true
	case *tg.PeerChannel:
		return markChannel(peer.ChannelID), true
	default:
		return 0, false
	}
}

func markChannel(id int64) int64 {
	return -(channelIDOffset + id)
}

type peerEntry struct {
	input   tg.InputPeerClass
	title   string
	isGroup bool
}

// peerCache remembers access hashes of every user, chat and channel seen in
// dialogs and updates, so a marked chat id can be turned back into an input peer.
type peerCache struct {
	mu    sync.RWMutex
	peers map[int64]peerEntry
}

func newPeerCache() *peerCache {
	return &peerCache{peers: make(map[int64]peerEntry)}
}

func (c *peerCache) addUsers(users []tg.UserClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.putUser(user)
		}
	}
}

func (c *peerCache) addChats(chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		switch chat := ch.(type) {
		case *tg.Chat:
			c.putChat(chat)
		case *tg.Channel:
			c.putChannel(chat)
		}
	}
}

func (c *peerCache) addEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, user := range e.Users {
		c.putUser(user)
	}
	for _, chat := range e.Chats {
		c.putChat(chat)
	}
	for _, channel := range e.Channels {
		c.putChannel(channel)
	}
}

func (c *peerCache) putUser(user *tg.User) {
	title := user.FirstName
	if user.LastName != "" {
		title += " " + user.LastName
	}
	c.peers[user.ID] = peerEntry{
		input: &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
		title: title,
	}
}

func (c *peerCache) putChat(chat *tg.Chat) {
	c.peers[-chat.ID] = peerEntry{
		input:   &tg.InputPeerChat{ChatID: chat.ID},
		title:   chat.Title,
		isGroup: !chat.Deactivated,
	}
}

func (c *peerCache) putChannel(channel *tg.Channel) {
	c.peers[markChannel(channel.ID)] = peerEntry{
		input:   &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash},
		title:   channel.Title,
		isGroup: channel.Megagroup || channel.Gigagroup,
	}
}

func (c *peerCache) resolve(chatID int64) (tg.InputPeerClass, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.peers[chatID]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	return entry.input, nil
}

func (c *peerCache) chat(chatID int64) (domain.Chat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.peers[chatID]
	if !ok {
		return domain.Chat{}, false
	}
	return domain.Chat{ID: chatID, Title: entry.title, IsGroup: entry.isGroup}, true
}

func (c *peerCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}
