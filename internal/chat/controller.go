package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/logger"

	"github.com/google/uuid"
)

// ErrNoSession is returned by Send when no user is signed in
var ErrNoSession = errors.New("no active session")

// NearBottomPx is how close to the bottom the viewport must be for a new
// message to auto-scroll it. Further away means the user scrolled up to
// read history and must not be yanked back down.
const NearBottomPx = 120

// Identity is the signed-in user as the chat view needs it
type Identity struct {
	UserID   uint
	Username string
}

// Session exposes the current sign-in state
type Session interface {
	Current() (Identity, bool)
}

// History loads messages from the backend
type History interface {
	Recent(ctx context.Context, room string) ([]models.ChatMessage, error)
	Since(ctx context.Context, room string, after time.Time) ([]models.ChatMessage, error)
}

// Sender persists a message and fans it out. Broadcast is best-effort:
// the poll fallback delivers the message to other clients regardless.
type Sender interface {
	Send(ctx context.Context, msg *models.ChatMessage) error
	Broadcast(ctx context.Context, room string, msg *models.ChatMessage) error
}

// Feed attaches the push and broadcast callbacks for a room. There is no
// unsubscribe: stale-room deliveries are dropped by comparing the event's
// room to the active room at callback time.
type Feed interface {
	SubscribePush(room string, fn func(models.ChatMessage))
	SubscribeBroadcast(room string, fn func(models.ChatMessage))
}

// Viewport is the scroll state of the rendered message list
type Viewport interface {
	DistanceFromBottom() int
	ScrollToBottom()
}

// Clock is injected so dedup retention is testable
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// Config tunes the view; zero values fall back to the defaults the site
// has always used
type Config struct {
	ViewLimit    int
	PollInterval time.Duration
	// EvictedRetention is how long an evicted message id is still
	// recognized as a duplicate
	EvictedRetention time.Duration
}

func (c *Config) applyDefaults() {
	if c.ViewLimit <= 0 {
		c.ViewLimit = 60
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.EvictedRetention <= 0 {
		c.EvictedRetention = 15 * time.Second
	}
}

// Controller owns one chat view: the rendered message window, the poll
// high-water mark and the active room. Messages race in over three
// channels (push, broadcast, poll); each carries the id assigned at send
// time, and the view renders every id at most once.
type Controller struct {
	history  History
	sender   Sender
	feed     Feed
	session  Session
	viewport Viewport
	clock    Clock
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	room    string
	view    []models.ChatMessage
	inView  map[string]bool
	evicted map[string]time.Time
	hwm     time.Time
}

// NewController creates a chat controller for the given room
func NewController(room string, history History, sender Sender, feed Feed, session Session, viewport Viewport, clock Clock, cfg Config, log *logger.Logger) *Controller {
	cfg.applyDefaults()
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Controller{
		history:  history,
		sender:   sender,
		feed:     feed,
		session:  session,
		viewport: viewport,
		clock:    clock,
		cfg:      cfg,
		log:      log,
		room:     models.NormalizeRoom(room),
		inView:   make(map[string]bool),
		evicted:  make(map[string]time.Time),
	}

	if feed != nil {
		feed.SubscribePush(c.room, c.OnPush)
		feed.SubscribeBroadcast(c.room, c.OnBroadcast)
	}

	return c
}

// Room returns the active room
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// View returns a copy of the rendered messages in order
func (c *Controller) View() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.view))
	copy(out, c.view)
	return out
}

// LoadRecent replaces the view with the room's latest messages and seeds
// the poll high-water mark from the newest one
func (c *Controller) LoadRecent(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	messages, err := c.history.Recent(ctx, room)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if room != c.room {
		// Room switched while the load was in flight
		return nil
	}

	c.view = c.view[:0]
	c.inView = make(map[string]bool)
	c.evicted = make(map[string]time.Time)
	c.hwm = time.Time{}
	for _, msg := range messages {
		c.view = append(c.view, msg)
		c.inView[msg.ID] = true
		if msg.CreatedAt.After(c.hwm) {
			c.hwm = msg.CreatedAt
		}
	}

	if c.viewport != nil {
		c.viewport.ScrollToBottom()
	}
	return nil
}

// OnPush handles a server push delivery
func (c *Controller) OnPush(msg models.ChatMessage) {
	c.deliver(msg)
}

// OnBroadcast handles a peer broadcast delivery
func (c *Controller) OnBroadcast(msg models.ChatMessage) {
	c.deliver(msg)
}

// PollTick fetches messages newer than the high-water mark. It runs on a
// fixed interval whether or not push is healthy, so delivery degrades to
// at-worst-one-poll-late instead of silently stopping.
func (c *Controller) PollTick(ctx context.Context) error {
	c.mu.Lock()
	room, hwm := c.room, c.hwm
	c.mu.Unlock()

	messages, err := c.history.Since(ctx, room, hwm)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		c.deliver(msg)
	}
	return nil
}

// Run polls until the context is cancelled
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.PollTick(ctx); err != nil {
				c.log.Warn("Chat poll failed", "room", c.Room(), "error", err.Error())
			}
		}
	}
}

// Send persists a message and renders it immediately. The id assigned
// here travels with the message, so the echo coming back over push,
// broadcast or poll is recognized and dropped. Empty input is a no-op.
func (c *Controller) Send(ctx context.Context, text string) error {
	identity, ok := c.session.Current()
	if !ok {
		return ErrNoSession
	}

	content := models.TruncateContent(text)
	if content == "" {
		return nil
	}

	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	msg := models.ChatMessage{
		ID:        uuid.New().String(),
		CreatedAt: c.clock.Now(),
		UserID:    identity.UserID,
		Username:  identity.Username,
		Content:   content,
		Room:      room,
	}

	if err := c.sender.Send(ctx, &msg); err != nil {
		return err
	}

	// Optimistic local render; the stored copy will arrive again over
	// the delivery channels and be dropped by id
	c.deliver(msg)

	if err := c.sender.Broadcast(ctx, room, &msg); err != nil {
		c.log.Warn("Chat broadcast failed, poll will deliver", "room", room, "error", err.Error())
	}
	return nil
}

// SwitchRoom changes the active room: resets the high-water mark, reloads
// history and resubscribes. Unchanged room is a no-op. Events from the
// old room that still arrive are dropped by the room compare in deliver.
func (c *Controller) SwitchRoom(ctx context.Context, room string) error {
	room = models.NormalizeRoom(room)

	c.mu.Lock()
	if room == c.room {
		c.mu.Unlock()
		return nil
	}
	c.room = room
	c.view = c.view[:0]
	c.inView = make(map[string]bool)
	c.evicted = make(map[string]time.Time)
	c.hwm = time.Time{}
	c.mu.Unlock()

	if c.feed != nil {
		c.feed.SubscribePush(room, c.OnPush)
		c.feed.SubscribeBroadcast(room, c.OnBroadcast)
	}

	return c.LoadRecent(ctx)
}

// deliver is the single append path shared by push, broadcast, poll and
// the optimistic local render
func (c *Controller) deliver(msg models.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if models.NormalizeRoom(msg.Room) != c.room {
		return
	}
	if c.inView[msg.ID] {
		return
	}
	if _, wasEvicted := c.evicted[msg.ID]; wasEvicted {
		return
	}

	// Capture scroll position before appending; only a reader already at
	// the bottom gets scrolled
	nearBottom := c.viewport == nil || c.viewport.DistanceFromBottom() <= NearBottomPx

	c.view = append(c.view, msg)
	c.inView[msg.ID] = true

	now := c.clock.Now()
	for len(c.view) > c.cfg.ViewLimit {
		oldest := c.view[0]
		c.view = c.view[1:]
		delete(c.inView, oldest.ID)
		c.evicted[oldest.ID] = now
	}
	c.pruneEvicted(now)

	if msg.CreatedAt.After(c.hwm) {
		c.hwm = msg.CreatedAt
	}

	if nearBottom && c.viewport != nil {
		c.viewport.ScrollToBottom()
	}
}

func (c *Controller) pruneEvicted(now time.Time) {
	for id, at := range c.evicted {
		if now.Sub(at) > c.cfg.EvictedRetention {
			delete(c.evicted, id)
		}
	}
}
