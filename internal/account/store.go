package account

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
)

// AccountStore owns the set of running sessions and reconciles it against
// the database so linked accounts start and revoked ones stop without a
// restart.
type AccountStore struct {
	cfg      *config.Config
	storage  *db.AccountsStorage
	rules    *db.RulesStorage
	jobs     *db.JobsStorage
	accounts sync.Map
}

func NewAccountsStore(cfg *config.Config, as *db.AccountsStorage, rs *db.RulesStorage, js *db.JobsStorage) *AccountStore {
	return &AccountStore{cfg: cfg, storage: as, rules: rs, jobs: js}
}

func (as *AccountStore) Put(id int64, acc *Account) {
	as.accounts.Store(id, acc)
}

func (as *AccountStore) Get(accId int64) *Account {
	acc, ok := as.accounts.Load(accId)
	if !ok {
		return nil
	}

	return acc.(*Account)
}

func (as *AccountStore) Delete(accId int64) {

	as.accounts.Delete(accId)
}

func (as *AccountStore) Range(f func(key any, value any) bool) {

	as.accounts.Range(f)
}

// RunOne starts the sessions for a single phone, used when the binary is
// pinned to one account.
func (as *AccountStore) RunOne(ctx context.Context, phone string) {
	accounts, err := as.storage.LoadAccounts(ctx, phone)
	if err != nil {
		log.Printf("load accounts: %s", err.Error())

		return
	}
	for _, mongoAcc := range accounts {
		if mongoAcc.Status != consts.AccStatusActive {
			log.Printf("wont run Account %d, because its not active yet: `%s`", mongoAcc.Id, mongoAcc.Status)
			continue
		}
		as.startAccount(ctx, mongoAcc)
	}

	<-ctx.Done()
	as.Range(func(key any, value any) bool {
		as.stopAccount(context.Background(), value.(*Account), "shutting down")
		return true
	})
}

// Run reconciles forever: new active accounts are started, accounts that
// left active status are stopped and their pending jobs failed.
func (as *AccountStore) Run(ctx context.Context) {
	for {
		accounts, err := as.storage.LoadAccounts(ctx, "")
		if err != nil {
			log.Printf("load accounts: %s", err.Error())
		}
		for _, mongoAcc := range accounts {
			running := as.Get(mongoAcc.Id)
			if running != nil {
				if mongoAcc.Status != consts.AccStatusActive {
					log.Printf("stopping Account %d, status changed: `%s`", mongoAcc.Id, mongoAcc.Status)
					as.stopAccount(ctx, running, "account "+mongoAcc.Status)
				} else {
					running.Invalidate()
				}
				continue
			}
			if mongoAcc.Status != consts.AccStatusActive {
				continue
			}
			as.startAccount(ctx, mongoAcc)
		}

		select {
		case <-ctx.Done():
			as.Range(func(key any, value any) bool {
				as.stopAccount(context.Background(), value.(*Account), "shutting down")
				return true
			})

			return
		case <-time.After(as.cfg.ReconcileInterval):
		}
	}
}

func (as *AccountStore) startAccount(ctx context.Context, mongoAcc *db.DbAccountData) {
	log.Printf("create Account %d", mongoAcc.Id)
	acc, err := NewAccount(as.cfg, mongoAcc, as.rules, as.jobs)
	if err != nil {
		log.Printf("create Account %d: %s", mongoAcc.Id, err.Error())

		return
	}

	acc.sched.OnAuthInvalid = func(err error) {
		as.revokeAccount(acc, err.Error())
	}
	acc.TdApi.OnAuthClosed = func() {
		as.revokeAccount(acc, "authorization closed")
	}

	if err := acc.Run(ctx); err != nil {
		log.Printf("run Account %d: %s", mongoAcc.Id, err.Error())

		return
	}
	as.Put(mongoAcc.Id, acc)
}

// revokeAccount takes a dead session out of rotation: mark it revoked, fail
// whatever was still queued, stop the runtime. Jobs already delivered stay
// delivered.
func (as *AccountStore) revokeAccount(acc *Account, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("revoking Account %d: %s", acc.DbData.Id, reason)
	if err := as.storage.SetAccountStatus(ctx, acc.DbData.Id, consts.AccStatusRevoked); err != nil {
		log.Printf("set account %d status: %s", acc.DbData.Id, err.Error())
	}
	if err := as.jobs.FailPending(ctx, acc.DbData.Id, reason); err != nil {
		log.Printf("fail pending jobs for account %d: %s", acc.DbData.Id, err.Error())
	}
	as.Delete(acc.DbData.Id)
	acc.Stop()
}

func (as *AccountStore) stopAccount(ctx context.Context, acc *Account, reason string) {
	if err := as.jobs.FailPending(ctx, acc.DbData.Id, reason); err != nil {
		log.Printf("fail pending jobs for account %d: %s", acc.DbData.Id, err.Error())
	}
	as.Delete(acc.DbData.Id)
	acc.Stop()
}
