package db

import (
	"context"
	"fmt"
	"time"

	"github.com/TeleOle/auto-forward/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AccountsStorage struct {
	accountColl *mongo.Collection
	usersColl   *mongo.Collection
}

func NewAccountsStorage(cfg *config.Config, dbClient *mongo.Client) *AccountsStorage {
	return &AccountsStorage{
		accountColl: dbClient.Database(cfg.MongoDb).Collection("accounts"),
		usersColl:   dbClient.Database(cfg.MongoDb).Collection("users"),
	}
}

func (as *AccountsStorage) LoadAccounts(ctx context.Context, phone string) ([]*DbAccountData, error) {
	var crit bson.M
	if phone == "" {
		crit = bson.M{}
	} else {
		crit = bson.M{"phone": phone}
	}
	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	accountsCursor, err := as.accountColl.Find(mctx, crit)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	accs := make([]*DbAccountData, 0)
	err = accountsCursor.All(mctx, &accs)
	if err != nil {
		return nil, fmt.Errorf("load accounts cursor: %w", err)
	}

	return accs, nil
}

func (as *AccountsStorage) SaveAccount(ctx context.Context, account *DbAccountData) error {
	crit := bson.D{{Key: "phone", Value: account.Phone}}
	update := bson.D{{Key: "$set", Value: account}}
	t := true
	opts := &options.UpdateOptions{Upsert: &t}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := as.accountColl.UpdateOne(mctx, crit, update, opts)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (as *AccountsStorage) GetSavedAccount(ctx context.Context, phone string) (*DbAccountData, error) {
	var acc *DbAccountData

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	crit := bson.D{{Key: "phone", Value: phone}}
	accObj := as.accountColl.FindOne(mctx, crit)
	if accObj.Err() == mongo.ErrNoDocuments {
		return nil, nil
	} else if accObj.Err() != nil {
		return nil, fmt.Errorf("get account: %w", accObj.Err())
	}
	err := accObj.Decode(&acc)
	if err != nil {
		return nil, fmt.Errorf("decode db account: %w", err)
	}

	return acc, nil
}

// SetAccountStatus moves an account between lifecycle states. The reconcile
// loop observes the change and starts or stops the live session accordingly.
func (as *AccountsStorage) SetAccountStatus(ctx context.Context, accountId int64, status string) error {
	crit := bson.D{{Key: "id", Value: accountId}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: status}}}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := as.accountColl.UpdateOne(mctx, crit, update)
	if err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	return nil
}

func (as *AccountsStorage) EnsureUser(ctx context.Context, user *DbUserData) error {
	crit := bson.D{{Key: "id", Value: user.Id}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "username", Value: user.Username}, {Key: "firstName", Value: user.FirstName}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: time.Now()}}},
	}
	t := true
	opts := &options.UpdateOptions{Upsert: &t}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := as.usersColl.UpdateOne(mctx, crit, update, opts)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}
