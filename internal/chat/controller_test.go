package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fightzone/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fakeHistory struct {
	mu       sync.Mutex
	rooms    map[string][]models.ChatMessage
	sinceErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rooms: make(map[string][]models.ChatMessage)}
}

func (f *fakeHistory) add(msg models.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := models.NormalizeRoom(msg.Room)
	f.rooms[room] = append(f.rooms[room], msg)
}

func (f *fakeHistory) Recent(ctx context.Context, room string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.rooms[models.NormalizeRoom(room)]
	if len(msgs) > 60 {
		msgs = msgs[len(msgs)-60:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *fakeHistory) Since(ctx context.Context, room string, after time.Time) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinceErr != nil {
		return nil, f.sinceErr
	}
	var out []models.ChatMessage
	for _, msg := range f.rooms[models.NormalizeRoom(room)] {
		if msg.CreatedAt.After(after) {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu           sync.Mutex
	sent         []models.ChatMessage
	broadcasts   []models.ChatMessage
	sendErr      error
	broadcastErr error
	history      *fakeHistory
}

func (f *fakeSender) Send(ctx context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, *msg)
	if f.history != nil {
		f.history.add(*msg)
	}
	return nil
}

func (f *fakeSender) Broadcast(ctx context.Context, room string, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broadcastErr != nil {
		return f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, *msg)
	return nil
}

type fakeFeed struct {
	mu         sync.Mutex
	pushRooms  []string
	bcastRooms []string
}

func (f *fakeFeed) SubscribePush(room string, fn func(models.ChatMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushRooms = append(f.pushRooms, room)
}

func (f *fakeFeed) SubscribeBroadcast(room string, fn func(models.ChatMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcastRooms = append(f.bcastRooms, room)
}

type fakeSession struct {
	identity Identity
	signedIn bool
}

func (f *fakeSession) Current() (Identity, bool) {
	return f.identity, f.signedIn
}

type fakeViewport struct {
	distance int
	scrolls  int
}

func (f *fakeViewport) DistanceFromBottom() int { return f.distance }
func (f *fakeViewport) ScrollToBottom()         { f.scrolls++ }

type fixture struct {
	ctrl     *Controller
	history  *fakeHistory
	sender   *fakeSender
	feed     *fakeFeed
	session  *fakeSession
	viewport *fakeViewport
	clock    *fakeClock
}

func newFixture(room string) *fixture {
	history := newFakeHistory()
	sender := &fakeSender{history: history}
	feed := &fakeFeed{}
	session := &fakeSession{identity: Identity{UserID: 7, Username: "fan"}, signedIn: true}
	viewport := &fakeViewport{}
	clock := newFakeClock()

	ctrl := NewController(room, history, sender, feed, session, viewport, clock, Config{}, nil)
	return &fixture{ctrl: ctrl, history: history, sender: sender, feed: feed, session: session, viewport: viewport, clock: clock}
}

func msgAt(id, room, content string, userID uint, at time.Time) models.ChatMessage {
	return models.ChatMessage{
		ID:        id,
		CreatedAt: at,
		UserID:    userID,
		Username:  "fan",
		Content:   content,
		Room:      room,
	}
}

func TestSendRendersExactlyOnceAcrossAllChannels(t *testing.T) {
	ctx := context.Background()
	f := newFixture("global")

	require.NoError(t, f.ctrl.Send(ctx, "hello"))
	require.Len(t, f.sender.sent, 1)
	stored := f.sender.sent[0]

	// Push, broadcast and poll all race to deliver the stored copy
	f.ctrl.OnPush(stored)
	f.ctrl.OnBroadcast(stored)
	require.NoError(t, f.ctrl.PollTick(ctx))

	view := f.ctrl.View()
	require.Len(t, view, 1)
	assert.Equal(t, "hello", view[0].Content)
	assert.Equal(t, uint(7), view[0].UserID)
}

func TestSendRequiresSession(t *testing.T) {
	f := newFixture("global")
	f.session.signedIn = false

	err := f.ctrl.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, f.sender.sent)
}

func TestSendEmptyIsNoOp(t *testing.T) {
	f := newFixture("global")

	require.NoError(t, f.ctrl.Send(context.Background(), "   \n  "))
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.ctrl.View())
}

func TestSendTruncatesContent(t *testing.T) {
	f := newFixture("global")

	long := ""
	for i := 0; i < 40; i++ {
		long += "0123456789"
	}
	require.NoError(t, f.ctrl.Send(context.Background(), long))
	require.Len(t, f.sender.sent, 1)
	assert.Len(t, f.sender.sent[0].Content, models.MaxContentLen)
}

func TestBroadcastFailureIsNonFatal(t *testing.T) {
	f := newFixture("global")
	f.sender.broadcastErr = errors.New("channel down")

	require.NoError(t, f.ctrl.Send(context.Background(), "hello"))
	assert.Len(t, f.ctrl.View(), 1)
}

func TestViewCapsAtLimitOldestEvicted(t *testing.T) {
	f := newFixture("global")
	base := f.clock.Now()

	for i := 0; i < 70; i++ {
		f.ctrl.OnPush(msgAt(fmt.Sprintf("m%d", i), "global", fmt.Sprintf("msg %d", i), 2, base.Add(time.Duration(i)*time.Second)))
	}

	view := f.ctrl.View()
	require.Len(t, view, 60)
	assert.Equal(t, "msg 10", view[0].Content)
	assert.Equal(t, "msg 69", view[59].Content)
}

func TestEvictedMessageRedeliveryIsDropped(t *testing.T) {
	f := newFixture("global")
	base := f.clock.Now()

	first := msgAt("m0", "global", "first", 2, base)
	f.ctrl.OnPush(first)
	for i := 1; i <= 60; i++ {
		f.ctrl.OnPush(msgAt(fmt.Sprintf("m%d", i), "global", "x", 2, base.Add(time.Duration(i)*time.Second)))
	}
	require.Len(t, f.ctrl.View(), 60)

	// A late duplicate of the evicted message must not re-enter the view
	f.ctrl.OnBroadcast(first)
	view := f.ctrl.View()
	require.Len(t, view, 60)
	assert.NotEqual(t, "first", view[59].Content)
}

func TestStaleRoomEventsAreDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture("global")
	base := f.clock.Now()

	f.history.add(msgAt("r2-1", "ring-b", "welcome to ring b", 3, base))
	require.NoError(t, f.ctrl.SwitchRoom(ctx, "ring-b"))

	view := f.ctrl.View()
	require.Len(t, view, 1)
	assert.Equal(t, "welcome to ring b", view[0].Content)

	// An event from the previous room arrives after the switch
	f.ctrl.OnPush(msgAt("r1-1", "global", "stale", 3, base.Add(time.Second)))
	require.Len(t, f.ctrl.View(), 1)

	// Resubscribed both channels for the new room
	assert.Contains(t, f.feed.pushRooms, "ring-b")
	assert.Contains(t, f.feed.bcastRooms, "ring-b")
}

func TestSwitchRoomSameRoomIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture("global")
	f.ctrl.OnPush(msgAt("m1", "global", "hello", 2, f.clock.Now()))

	require.NoError(t, f.ctrl.SwitchRoom(ctx, "  "))
	assert.Len(t, f.ctrl.View(), 1)
}

func TestSwitchRoomResetsHighWaterMark(t *testing.T) {
	ctx := context.Background()
	f := newFixture("global")
	base := f.clock.Now()

	// Advance the watermark in the old room
	f.ctrl.OnPush(msgAt("m1", "global", "old room", 2, base.Add(time.Hour)))

	// The new room's only message is older than the old room's watermark;
	// a reset watermark must still pick it up via poll
	f.history.add(msgAt("b1", "ring-b", "older message", 3, base))
	require.NoError(t, f.ctrl.SwitchRoom(ctx, "ring-b"))

	view := f.ctrl.View()
	require.Len(t, view, 1)
	assert.Equal(t, "older message", view[0].Content)
}

func TestPollTickFetchesOnlyNewMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture("global")
	base := f.clock.Now()

	f.history.add(msgAt("m1", "global", "one", 2, base))
	f.history.add(msgAt("m2", "global", "two", 2, base.Add(time.Second)))
	require.NoError(t, f.ctrl.LoadRecent(ctx))
	require.Len(t, f.ctrl.View(), 2)

	// Nothing new: poll appends nothing, including the watermark row
	require.NoError(t, f.ctrl.PollTick(ctx))
	assert.Len(t, f.ctrl.View(), 2)

	f.history.add(msgAt("m3", "global", "three", 2, base.Add(2*time.Second)))
	require.NoError(t, f.ctrl.PollTick(ctx))

	view := f.ctrl.View()
	require.Len(t, view, 3)
	assert.Equal(t, "three", view[2].Content)
}

func TestScrollPolicy(t *testing.T) {
	f := newFixture("global")
	base := f.clock.Now()

	// Reader scrolled up: no auto-scroll
	f.viewport.distance = NearBottomPx + 1
	f.ctrl.OnPush(msgAt("m1", "global", "one", 2, base))
	assert.Equal(t, 0, f.viewport.scrolls)

	// Reader at the bottom: follow the conversation
	f.viewport.distance = NearBottomPx
	f.ctrl.OnPush(msgAt("m2", "global", "two", 2, base.Add(time.Second)))
	assert.Equal(t, 1, f.viewport.scrolls)
}

func TestNameColorStablePerAccount(t *testing.T) {
	first := NameColor(7, "fan")
	assert.Equal(t, first, NameColor(7, "renamed"))
	assert.Contains(t, nameColors[:], first)

	// Anonymous fallback hashes the username instead
	assert.Equal(t, NameColor(0, "guest"), NameColor(0, "guest"))
}
