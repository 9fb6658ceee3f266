package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapen17/vps1/internal/domain"
)

func TestMarkPeer(t *testing.T) {
	tests := []struct {
		name string
		peer tg.PeerClass
		want int64
		ok   bool
	}{
		{"user", &tg.PeerUser{UserID: 42}, 42, true},
		{"basic group", &tg.PeerChat{ChatID: 123}, -123, true},
		{"channel", &tg.PeerChannel{ChannelID: 1234567890}, -1001234567890, true},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := markPeer(tt.peer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeerCache_ResolveAndChat(t *testing.T) {
	c := newPeerCache()
	c.addUsers([]tg.UserClass{&tg.User{ID: 7, AccessHash: 70, FirstName: "Ann", LastName: "Lee"}})
	c.addChats([]tg.ChatClass{
		&tg.Chat{ID: 10, Title: "friends"},
		&tg.Channel{ID: 20, AccessHash: 200, Title: "news"},
		&tg.Channel{ID: 30, AccessHash: 300, Title: "talk", Megagroup: true},
	})
	require.Equal(t, 4, c.len())

	peer, err := c.resolve(7)
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerUser{UserID: 7, AccessHash: 70}, peer)

	peer, err = c.resolve(markChannel(20))
	require.NoError(t, err)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 20, AccessHash: 200}, peer)

	_, err = c.resolve(999)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)

	user, ok := c.chat(7)
	require.True(t, ok)
	assert.Equal(t, domain.Chat{ID: 7, Title: "Ann Lee"}, user)

	group, ok := c.chat(-10)
	require.True(t, ok)
	assert.True(t, group.IsGroup)

	channel, _ := c.chat(markChannel(20))
	assert.False(t, channel.IsGroup)

	megagroup, _ := c.chat(markChannel(30))
	assert.True(t, megagroup.IsGroup)
}

func TestPeerCache_AddEntities(t *testing.T) {
	c := newPeerCache()
	c.addEntities(tg.Entities{
		Users:    map[int64]*tg.User{1: {ID: 1, AccessHash: 11}},
		Chats:    map[int64]*tg.Chat{2: {ID: 2, Title: "g"}},
		Channels: map[int64]*tg.Channel{3: {ID: 3, AccessHash: 33, Title: "c"}},
	})

	for _, id := range []int64{1, -2, markChannel(3)} {
		_, err := c.resolve(id)
		assert.NoError(t, err, id)
	}
}
