package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/dapen17/vps1/internal/domain"
)

func TestNewMTProtoClient_Validation(t *testing.T) {
	storage := NewMemorySessionStorage()
	ref := domain.SessionRef{OwnerID: 1, Phone: "628123456789"}

	tests := []struct {
		name string
		cfg  MTProtoClientConfig
	}{
		{"missing api id", MTProtoClientConfig{APIHash: "h", Ref: ref, Storage: storage}},
		{"missing api hash", MTProtoClientConfig{APIID: 1, Ref: ref, Storage: storage}},
		{"missing phone", MTProtoClientConfig{APIID: 1, APIHash: "h", Storage: storage}},
		{"missing storage", MTProtoClientConfig{APIID: 1, APIHash: "h", Ref: ref}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMTProtoClient(tt.cfg); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}

	client, err := NewMTProtoClient(MTProtoClientConfig{APIID: 1, APIHash: "h", Ref: ref, Storage: storage, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.IsConnected() {
		t.Error("New client must not be connected")
	}
	if got := client.Account(); got.OwnerID != 1 || got.Phone != ref.Phone {
		t.Errorf("Unexpected account %+v", got)
	}
}

// TestSendMessage_NotConnected tests error handling when client is not connected
func TestSendMessage_NotConnected(t *testing.T) {
	client := &MTProtoClient{peers: newPeerCache()}
	ctx := context.Background()

	if err := client.SendMessage(ctx, -100, "hi"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got: %v", err)
	}
	if err := client.Reply(ctx, -100, 1, "hi"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got: %v", err)
	}
	if err := client.IterChats(ctx, func(domain.Chat) error { return nil }); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got: %v", err)
	}
}

func TestDisconnect_NotConnectedIsNoop(t *testing.T) {
	client := &MTProtoClient{logger: zerolog.Nop()}
	if err := client.Disconnect(context.Background()); err != nil {
		t.Errorf("Expected nil, got: %v", err)
	}
}

func TestMaskPhoneNumber(t *testing.T) {
	tests := map[string]string{
		"628123456789": "62********89",
		"1234":         "1234",
		"123":          "***",
	}
	for in, want := range tests {
		if got := maskPhoneNumber(in); got != want {
			t.Errorf("maskPhoneNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToIncoming(t *testing.T) {
	msg := &tg.Message{
		ID:      10,
		PeerID:  &tg.PeerChannel{ChannelID: 55},
		Message: "cloe ping",
		Date:    1700000000,
	}
	msg.SetFromID(&tg.PeerUser{UserID: 7})

	in, ok := toIncoming(99, msg)
	if !ok {
		t.Fatal("Expected message to convert")
	}
	if in.ChatID != markChannel(55) || in.SenderID != 7 || in.Private || in.Out {
		t.Errorf("Unexpected conversion %+v", in)
	}
	if !in.Date.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Unexpected date %v", in.Date)
	}

	private := &tg.Message{ID: 11, PeerID: &tg.PeerUser{UserID: 5}, Message: "hello"}
	in, ok = toIncoming(99, private)
	if !ok || !in.Private || in.SenderID != 5 || in.ChatID != 5 {
		t.Errorf("Unexpected private conversion %+v", in)
	}

	out := &tg.Message{ID: 12, PeerID: &tg.PeerUser{UserID: 5}, Out: true}
	in, _ = toIncoming(99, out)
	if in.SenderID != 99 || !in.Out {
		t.Errorf("Outgoing message must be sent by the account, got %+v", in)
	}
}

func TestWrapError_FloodWait(t *testing.T) {
	err := wrapError("send message", tgerr.New(420, "FLOOD_WAIT_30"))

	d, ok := domain.AsRateLimited(err)
	if !ok {
		t.Fatalf("Expected rate limited error, got: %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("Expected 30s, got %s", d)
	}

	plain := errors.New("boom")
	if err := wrapError("send message", plain); !errors.Is(err, plain) {
		t.Errorf("Expected wrapped error, got: %v", err)
	}
}

func TestClassifyRunError(t *testing.T) {
	if classifyRunError(context.Canceled) != nil {
		t.Error("Cancellation is a clean exit")
	}
	if err := classifyRunError(tgerr.New(401, "AUTH_KEY_UNREGISTERED")); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("Expected ErrSessionRevoked, got: %v", err)
	}
}

func TestResolvePeer(t *testing.T) {
	c := &MTProtoClient{peers: newPeerCache(), logger: zerolog.Nop()}
	c.peers.addChats([]tg.ChatClass{&tg.Channel{ID: 1234, AccessHash: 99, Megagroup: true}})

	peer, err := c.resolvePeer(context.Background(), -1000000001234)
	if err != nil {
		t.Fatalf("Expected cached channel to resolve, got: %v", err)
	}
	if ch, ok := peer.(*tg.InputPeerChannel); !ok || ch.AccessHash != 99 {
		t.Errorf("Unexpected peer %#v", peer)
	}

	// unknown chats reload the dialogs, which needs a connection
	_, err = c.resolvePeer(context.Background(), -1000000005678)
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from dialog reload, got: %v", err)
	}
}

func TestOnNewMessage_PrivateMessageReachesHandler(t *testing.T) {
	var got []domain.IncomingMessage
	c := &MTProtoClient{
		peers:   newPeerCache(),
		account: domain.Account{ID: 42},
		handler: func(_ context.Context, msg domain.IncomingMessage) error {
			got = append(got, msg)
			return nil
		},
		logger: zerolog.Nop(),
	}

	// the form a short private message takes once expanded by the updates manager
	msg := &tg.Message{
		ID:      10,
		PeerID:  &tg.PeerUser{UserID: 777},
		Message: "hello",
		Date:    1700000000,
	}
	msg.SetFromID(&tg.PeerUser{UserID: 777})
	update := &tg.UpdateNewMessage{Message: msg}
	entities := tg.Entities{Users: map[int64]*tg.User{777: {ID: 777, AccessHash: 5, FirstName: "Ann"}}}

	if err := c.onNewMessage(context.Background(), entities, update); err != nil {
		t.Fatalf("onNewMessage failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("Expected 1 dispatched message, got %d", len(got))
	}
	if !got[0].Private || got[0].ChatID != 777 || got[0].SenderID != 777 || got[0].AccountID != 42 {
		t.Errorf("Unexpected message %+v", got[0])
	}
	if _, err := c.peers.resolve(777); err != nil {
		t.Errorf("Sender must be resolvable for the auto-reply, got: %v", err)
	}
}
