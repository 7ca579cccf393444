package forwarder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu    sync.Mutex
	units []*Unit
}

func (f *flushRecorder) flush(ctx context.Context, u *Unit) {
	f.mu.Lock()
	f.units = append(f.units, u)
	f.mu.Unlock()
}

func (f *flushRecorder) snapshot() []*Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Unit(nil), f.units...)
}

func (f *flushRecorder) waitFor(t *testing.T, n int, timeout time.Duration) []*Unit {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := f.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d flushed units, got %d", n, len(f.snapshot()))
	return nil
}

func albumPart(chatId, albumId, msgId int64, text string) *Unit {
	return &Unit{
		ChatId:     chatId,
		AlbumId:    albumId,
		MessageIds: []int64{msgId},
		Kind:       KindPhoto,
		Text:       text,
		HasCaption: text != "",
		ReceivedAt: time.Now(),
	}
}

func TestAlbumNonAlbumPassesThrough(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(time.Hour, rec.flush)

	agg.Add(context.Background(), &Unit{ChatId: 1, MessageIds: []int64{10}, Kind: KindText})

	units := rec.snapshot()
	require.Len(t, units, 1)
	assert.Equal(t, []int64{10}, units[0].MessageIds)
}

func TestAlbumMergesPartsAfterQuietWindow(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(60*time.Millisecond, rec.flush)
	ctx := context.Background()

	agg.Add(ctx, albumPart(1, 77, 10, ""))
	time.Sleep(20 * time.Millisecond)
	agg.Add(ctx, albumPart(1, 77, 11, "the caption"))
	time.Sleep(20 * time.Millisecond)
	agg.Add(ctx, albumPart(1, 77, 12, ""))

	units := rec.waitFor(t, 1, time.Second)
	require.Len(t, units, 1)
	assert.Equal(t, []int64{10, 11, 12}, units[0].MessageIds)
	assert.Equal(t, "the caption", units[0].Text)
	assert.True(t, units[0].IsAlbum())

	// No second flush later.
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestAlbumEachPartExtendsDeadline(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(80*time.Millisecond, rec.flush)
	ctx := context.Background()

	start := time.Now()
	agg.Add(ctx, albumPart(1, 5, 1, ""))
	time.Sleep(50 * time.Millisecond)
	agg.Add(ctx, albumPart(1, 5, 2, ""))

	rec.waitFor(t, 1, time.Second)
	// The group closed ~80ms after the second part, not after the first.
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestAlbumDistinctGroupsIndependent(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(40*time.Millisecond, rec.flush)
	ctx := context.Background()

	agg.Add(ctx, albumPart(1, 5, 1, ""))
	agg.Add(ctx, albumPart(1, 6, 2, ""))
	agg.Add(ctx, albumPart(2, 5, 3, ""))

	units := rec.waitFor(t, 3, time.Second)
	assert.Len(t, units, 3)
	for _, u := range units {
		assert.Len(t, u.MessageIds, 1)
	}
}

func TestAlbumLatePartAfterFlush(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(30*time.Millisecond, rec.flush)
	ctx := context.Background()

	agg.Add(ctx, albumPart(1, 9, 1, ""))
	rec.waitFor(t, 1, time.Second)

	// Straggler after the group closed is not lost and not merged.
	agg.Add(ctx, albumPart(1, 9, 2, ""))
	units := rec.waitFor(t, 2, time.Second)
	assert.Equal(t, []int64{1}, units[0].MessageIds)
	assert.Equal(t, []int64{2}, units[1].MessageIds)
}

func TestAlbumCloseFlushesEarly(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(time.Hour, rec.flush)
	ctx := context.Background()

	agg.Add(ctx, albumPart(1, 3, 1, ""))
	agg.Add(ctx, albumPart(1, 3, 2, ""))
	agg.Close(ctx, 1, 3)

	units := rec.snapshot()
	require.Len(t, units, 1)
	assert.Equal(t, []int64{1, 2}, units[0].MessageIds)
}

func TestAlbumShutdownDropsPending(t *testing.T) {
	rec := &flushRecorder{}
	agg := NewAlbumAggregator(30*time.Millisecond, rec.flush)

	agg.Add(context.Background(), albumPart(1, 4, 1, ""))
	agg.Shutdown()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
