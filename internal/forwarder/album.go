package forwarder

import (
	"context"
	"log"
	"sync"
	"time"
)

// FlushFunc receives one merged album, or a single message passed through.
type FlushFunc func(ctx context.Context, u *Unit)

type albumKey struct {
	chatId  int64
	albumId int64
}

type albumState struct {
	mu    sync.Mutex
	parts []*Unit
	timer *time.Timer
	done  bool
}

// AlbumAggregator buffers parts of one media group until the debounce window
// elapses with no further parts, then flushes them as a single unit. A unit
// without an album id is flushed immediately. Flush happens exactly once per
// media group.
type AlbumAggregator struct {
	window time.Duration
	flush  FlushFunc
	groups sync.Map // albumKey -> *albumState
}

func NewAlbumAggregator(window time.Duration, flush FlushFunc) *AlbumAggregator {
	return &AlbumAggregator{window: window, flush: flush}
}

// Add takes one inbound unit. Parts of an album are buffered, everything
// else goes straight through.
func (a *AlbumAggregator) Add(ctx context.Context, u *Unit) {
	if u.AlbumId == 0 {
		a.flush(ctx, u)
		return
	}

	key := albumKey{chatId: u.ChatId, albumId: u.AlbumId}
	val, loaded := a.groups.LoadOrStore(key, &albumState{})
	state := val.(*albumState)

	state.mu.Lock()
	if state.done {
		// The group already flushed; a straggler becomes its own unit
		// rather than being dropped.
		state.mu.Unlock()
		log.Printf("[album %d/%d] late part %d after flush", u.ChatId, u.AlbumId, u.MessageIds[0])
		a.flush(ctx, u)
		return
	}
	state.parts = append(state.parts, u)
	if !loaded || state.timer == nil {
		state.timer = time.AfterFunc(a.window, func() {
			a.release(ctx, key)
		})
	} else {
		// Each part extends the deadline, the group closes only after a
		// quiet window.
		state.timer.Reset(a.window)
	}
	state.mu.Unlock()
}

// Close flushes the group early, before its deadline. Used when the upstream
// stream signals the album is complete.
func (a *AlbumAggregator) Close(ctx context.Context, chatId int64, albumId int64) {
	a.release(ctx, albumKey{chatId: chatId, albumId: albumId})
}

func (a *AlbumAggregator) release(ctx context.Context, key albumKey) {
	val, loaded := a.groups.LoadAndDelete(key)
	if !loaded {
		return
	}
	state := val.(*albumState)

	state.mu.Lock()
	if state.done {
		state.mu.Unlock()
		return
	}
	state.done = true
	if state.timer != nil {
		state.timer.Stop()
	}
	parts := state.parts
	state.mu.Unlock()

	if len(parts) == 0 {
		return
	}
	a.flush(ctx, MergeAlbum(parts))
}

// Shutdown stops pending timers without flushing.
func (a *AlbumAggregator) Shutdown() {
	a.groups.Range(func(key, value any) bool {
		state := value.(*albumState)
		state.mu.Lock()
		state.done = true
		if state.timer != nil {
			state.timer.Stop()
		}
		state.mu.Unlock()
		a.groups.Delete(key)
		return true
	})
}
