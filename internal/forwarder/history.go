package forwarder

import (
	"context"
	"log"

	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/zelenin/go-tdlib/client"
	"go.uber.org/ratelimit"
)

// HistorySource pages a chat's past messages, newest first, the way the
// platform exposes history.
type HistorySource interface {
	ResolveChat(ctx context.Context, ref string) (int64, error)
	LoadChatHistory(ctx context.Context, chatId int64, fromMessageId int64) ([]*client.Message, error)
}

// CursorStore persists replay positions per (rule, source chat). Message
// ids of different chats live in unrelated id spaces, one shared cursor
// would mask a whole chat's backlog.
type CursorStore interface {
	HistoryCursor(ctx context.Context, ruleId int64, chatId int64) (int64, error)
	SaveHistoryCursor(ctx context.Context, ruleId int64, chatId int64, cursor int64) error
}

// Replayer backfills a rule's source history through the live pipeline.
// It enumerates backward until it hits the persisted cursor or the
// configured count, then replays oldest-first, persisting the cursor after
// every batch so an interrupted replay resumes instead of restarting.
// Replay is throttled far below the send ceiling on purpose.
type Replayer struct {
	accountId int64
	source    HistorySource
	cursors   CursorStore
	limiter   ratelimit.Limiter
	batchSize int
}

func NewReplayer(accountId int64, source HistorySource, cursors CursorStore, rate int, batchSize int) *Replayer {
	if rate <= 0 {
		rate = 1
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Replayer{
		accountId: accountId,
		source:    source,
		cursors:   cursors,
		limiter:   ratelimit.New(rate),
		batchSize: batchSize,
	}
}

// Run replays every source of the rule. process receives units in oldest-
// first order; it is the same path live units take after the aggregator.
func (r *Replayer) Run(ctx context.Context, rule *db.Rule, process func(ctx context.Context, u *Unit)) {
	count := rule.HistoryCount()
	if count <= 0 {
		return
	}
	for _, src := range rule.Sources {
		chatId, err := r.source.ResolveChat(ctx, src)
		if err != nil {
			log.Printf("[account %d] rule %d: cannot resolve history source %s: %s", r.accountId, rule.Id, src, err)
			continue
		}
		cursor, err := r.cursors.HistoryCursor(ctx, rule.Id, chatId)
		if err != nil {
			log.Printf("[account %d] rule %d: cannot load history cursor for chat %d: %s", r.accountId, rule.Id, chatId, err)
			continue
		}
		r.replayChat(ctx, rule, chatId, cursor, count, process)
	}
}

func (r *Replayer) replayChat(ctx context.Context, rule *db.Rule, chatId int64, cursor int64, count int, process func(ctx context.Context, u *Unit)) {
	backlog, err := r.collect(ctx, chatId, cursor, count)
	if err != nil {
		log.Printf("[account %d] rule %d: history enumeration failed: %s", r.accountId, rule.Id, err)
		return
	}
	if len(backlog) == 0 {
		return
	}
	log.Printf("[account %d] rule %d: replaying %d messages from chat %d", r.accountId, rule.Id, len(backlog), chatId)

	// backlog is newest-first; replay oldest-first.
	for i, j := 0, len(backlog)-1; i < j; i, j = i+1, j-1 {
		backlog[i], backlog[j] = backlog[j], backlog[i]
	}

	for start := 0; start < len(backlog); start += r.batchSize {
		end := start + r.batchSize
		if end > len(backlog) {
			end = len(backlog)
		}
		for _, msg := range backlog[start:end] {
			if ctx.Err() != nil {
				return
			}
			r.limiter.Take()
			process(ctx, NewUnit(r.accountId, msg, ""))
		}
		// The cursor moves only after the whole batch is handed off, a
		// crash re-runs at most one batch, never skips one.
		newest := backlog[end-1].Id
		if err := r.cursors.SaveHistoryCursor(ctx, rule.Id, chatId, newest); err != nil {
			log.Printf("[account %d] rule %d: cannot persist history cursor for chat %d: %s", r.accountId, rule.Id, chatId, err)
			return
		}
	}
}

// collect walks backward from the newest message, stopping at the cursor or
// the configured count. Already-confirmed messages (id <= cursor) are never
// re-delivered.
func (r *Replayer) collect(ctx context.Context, chatId int64, cursor int64, count int) ([]*client.Message, error) {
	backlog := make([]*client.Message, 0, count)
	fromMessageId := int64(0)
	for len(backlog) < count {
		r.limiter.Take()
		page, err := r.source.LoadChatHistory(ctx, chatId, fromMessageId)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		done := false
		for _, msg := range page {
			if msg.Id <= cursor {
				done = true
				break
			}
			backlog = append(backlog, msg)
			if len(backlog) >= count {
				done = true
				break
			}
		}
		if done {
			break
		}
		fromMessageId = page[len(page)-1].Id
	}
	return backlog, nil
}
