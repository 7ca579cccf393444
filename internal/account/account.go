package account

import (
	"context"
	"fmt"
	"log"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/TeleOle/auto-forward/internal/forwarder"
	"github.com/TeleOle/auto-forward/internal/tdlib"
	"github.com/zelenin/go-tdlib/client"
)

// Account is one running source session: the tdlib client plus the pipeline
// that turns its inbound messages into deliveries.
type Account struct {
	DbData   *db.DbAccountData
	Username string
	TdApi    *tdlib.TdApi
	Me       *client.User

	pipeline *forwarder.Pipeline
	sched    *forwarder.Scheduler
	replayer *forwarder.Replayer
	rules    *db.RulesStorage

	cancel context.CancelFunc
}

func NewAccount(cfg *config.Config, dbData *db.DbAccountData, rules *db.RulesStorage, jobs *db.JobsStorage) (*Account, error) {
	tdApi := tdlib.NewTdApi(cfg, dbData)

	acc := &Account{
		DbData: dbData,
		TdApi:  tdApi,
		rules:  rules,
	}

	acc.sched = forwarder.NewScheduler(dbData.Id, tdApi, jobs, cfg.SendRate, cfg.MaxSendRetries)
	acc.sched.OnDelivered = func(ruleId int64) {
		if err := rules.IncrementForwardCount(context.Background(), ruleId); err != nil {
			log.Printf("[%d] increment forward count for rule %d: %s", dbData.Id, ruleId, err.Error())
		}
	}

	matcher := forwarder.NewMatcher(dbData.Id, rules, cfg.ReconcileInterval)
	acc.pipeline = forwarder.NewPipeline(dbData.Id, matcher, acc.sched, cfg.AlbumDebounceWindow)
	acc.replayer = forwarder.NewReplayer(dbData.Id, tdApi, rules, cfg.HistoryRate, int(cfg.HistoryPageSize))

	tdApi.OnNewMessage = func(msg *client.Message, chatUsername string) {
		acc.pipeline.Enqueue(forwarder.NewUnit(dbData.Id, msg, chatUsername))
	}

	return acc, nil
}

// Run starts the tdlib session and the pipeline. The scheduler's auth hook
// is wired by the store so a dead session can take itself out of rotation.
func (acc *Account) Run(ctx context.Context) error {
	me, err := acc.TdApi.RunTdlib()
	if err != nil {
		return fmt.Errorf("account %d: %w", acc.DbData.Id, err)
	}
	acc.Me = me
	acc.Username = tdlib.GetUsername(me.Usernames)

	runCtx, cancel := context.WithCancel(ctx)
	acc.cancel = cancel
	go acc.pipeline.Run(runCtx)
	go acc.replayHistory(runCtx)

	return nil
}

// replayHistory feeds past messages through the same pipeline path as live
// ones, for every rule that asks for history.
func (acc *Account) replayHistory(ctx context.Context) {
	for _, rule := range acc.pipeline.Rules(ctx) {
		if rule.HistoryCount() <= 0 {
			continue
		}
		acc.replayer.Run(ctx, rule, func(ctx context.Context, u *forwarder.Unit) {
			acc.pipeline.ProcessRule(ctx, rule, u)
		})
	}
}

func (acc *Account) Invalidate() {
	acc.pipeline.Invalidate()
}

func (acc *Account) Stop() {
	if acc.cancel != nil {
		acc.cancel()
	}
	acc.sched.Shutdown()
	acc.TdApi.Close()
}
