package forwarder

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zelenin/go-tdlib/client"
)

// fakeHistory serves message ids newest-first in fixed pages, the way
// GetChatHistory does. Each chat has its own id space.
type fakeHistory struct {
	chats    map[int64][]int64 // chatId -> descending ids
	pageSize int
}

func singleChatHistory(ids []int64, pageSize int) *fakeHistory {
	return &fakeHistory{chats: map[int64][]int64{100: ids}, pageSize: pageSize}
}

func (f *fakeHistory) ResolveChat(ctx context.Context, ref string) (int64, error) {
	return strconv.ParseInt(ref, 10, 64)
}

func (f *fakeHistory) LoadChatHistory(ctx context.Context, chatId int64, fromMessageId int64) ([]*client.Message, error) {
	page := make([]*client.Message, 0, f.pageSize)
	for _, id := range f.chats[chatId] {
		if fromMessageId != 0 && id >= fromMessageId {
			continue
		}
		page = append(page, &client.Message{
			Id:      id,
			ChatId:  chatId,
			Content: &client.MessageText{Text: &client.FormattedText{Text: "m" + strconv.FormatInt(id, 10)}},
		})
		if len(page) >= f.pageSize {
			break
		}
	}
	return page, nil
}

type cursorKey struct {
	ruleId int64
	chatId int64
}

type fakeCursors struct {
	mu      sync.Mutex
	cursors map[cursorKey]int64
	saves   []int64
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{cursors: make(map[cursorKey]int64)}
}

func (f *fakeCursors) HistoryCursor(ctx context.Context, ruleId int64, chatId int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[cursorKey{ruleId, chatId}], nil
}

func (f *fakeCursors) SaveHistoryCursor(ctx context.Context, ruleId int64, chatId int64, cursor int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cursorKey{ruleId, chatId}
	if cursor > f.cursors[key] {
		f.cursors[key] = cursor
	}
	f.saves = append(f.saves, cursor)
	return nil
}

func historyRule(id int64, count int) *db.Rule {
	return &db.Rule{
		Id:           id,
		Sources:      []string{"100"},
		Destinations: []string{"200"},
		Mode:         consts.RuleModeForward,
		Enabled:      true,
		Modifiers:    []db.Modifier{{Kind: consts.ModHistory, HistoryCount: count}},
	}
}

func collectIds(t *testing.T, r *Replayer, rule *db.Rule) []int64 {
	t.Helper()
	var got []int64
	r.Run(context.Background(), rule, func(ctx context.Context, u *Unit) {
		got = append(got, u.MessageIds[0])
	})
	return got
}

func TestReplayOldestFirstUpToCount(t *testing.T) {
	source := singleChatHistory([]int64{50, 40, 30, 20, 10}, 2)
	cursors := newFakeCursors()
	r := NewReplayer(7, source, cursors, 1000, 10)

	got := collectIds(t, r, historyRule(1, 3))
	assert.Equal(t, []int64{30, 40, 50}, got)
}

func TestReplayStopsAtCursor(t *testing.T) {
	source := singleChatHistory([]int64{50, 40, 30, 20, 10}, 2)
	cursors := newFakeCursors()
	cursors.cursors[cursorKey{1, 100}] = 30
	r := NewReplayer(7, source, cursors, 1000, 10)

	// Nothing at or below the cursor is re-delivered.
	got := collectIds(t, r, historyRule(1, 100))
	assert.Equal(t, []int64{40, 50}, got)
}

func TestReplayPersistsCursorPerBatch(t *testing.T) {
	source := singleChatHistory([]int64{50, 40, 30, 20, 10}, 5)
	cursors := newFakeCursors()
	r := NewReplayer(7, source, cursors, 1000, 2)

	collectIds(t, r, historyRule(1, 5))

	cursors.mu.Lock()
	defer cursors.mu.Unlock()
	// Batches of 2: 10,20 then 30,40 then 50. Cursor advances after each.
	assert.Equal(t, []int64{20, 40, 50}, cursors.saves)
	assert.Equal(t, int64(50), cursors.cursors[cursorKey{1, 100}])
}

func TestReplayResumesAfterInterruption(t *testing.T) {
	source := singleChatHistory([]int64{50, 40, 30, 20, 10}, 5)
	cursors := newFakeCursors()
	r := NewReplayer(7, source, cursors, 1000, 10)

	first := collectIds(t, r, historyRule(1, 100))
	require.Equal(t, []int64{10, 20, 30, 40, 50}, first)

	// A second run finds the cursor at the newest id and replays nothing.
	second := collectIds(t, r, historyRule(1, 100))
	assert.Empty(t, second)
}

func TestReplayCursorsIndependentPerSourceChat(t *testing.T) {
	// Two sources whose id spaces are unrelated: chat 100 has high ids,
	// chat 200 low ones.
	source := &fakeHistory{chats: map[int64][]int64{
		100: {1000, 900},
		200: {5, 4},
	}, pageSize: 5}
	cursors := newFakeCursors()
	r := NewReplayer(7, source, cursors, 1000, 10)

	rule := historyRule(1, 100)
	rule.Sources = []string{"100", "200"}

	// First run is interrupted right after chat 100 finishes.
	ctx, cancel := context.WithCancel(context.Background())
	var first []int64
	r.Run(ctx, rule, func(ctx context.Context, u *Unit) {
		first = append(first, u.MessageIds[0])
		if u.MessageIds[0] == 1000 {
			cancel()
		}
	})
	require.Equal(t, []int64{900, 1000}, first)

	// The resumed run must still deliver chat 200's backlog; its low ids
	// are not hidden behind chat 100's cursor.
	var second []int64
	r.Run(context.Background(), rule, func(ctx context.Context, u *Unit) {
		second = append(second, u.MessageIds[0])
	})
	assert.Equal(t, []int64{4, 5}, second)
}

func TestReplayDisabledWithoutHistoryModifier(t *testing.T) {
	source := singleChatHistory([]int64{50}, 5)
	cursors := newFakeCursors()
	r := NewReplayer(7, source, cursors, 1000, 10)

	rule := historyRule(1, 5)
	rule.Modifiers = nil
	got := collectIds(t, r, rule)
	assert.Empty(t, got)
}
