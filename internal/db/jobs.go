package db

import (
	"context"
	"fmt"
	"time"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/consts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// JobOutcome is the record of one delivery job. It is written as pending
// when the job is accepted and rewritten when the job reaches a terminal
// state, so a crash leaves pending rows behind instead of silence. Failed
// outcomes carry the reason.
type JobOutcome struct {
	JobId       string    `bson:"jobId"`
	RuleId      int64     `bson:"ruleId"`
	AccountId   int64     `bson:"accountId"`
	Destination string    `bson:"destination"`
	MessageId   int64     `bson:"messageId"`
	State       string    `bson:"state"`
	Reason      string    `bson:"reason,omitempty"`
	Attempts    int       `bson:"attempts"`
	FinishedAt  time.Time `bson:"finishedAt,omitempty"`
}

type JobsStorage struct {
	jobsColl *mongo.Collection
}

func NewJobsStorage(cfg *config.Config, dbClient *mongo.Client) *JobsStorage {
	return &JobsStorage{
		jobsColl: dbClient.Database(cfg.MongoDb).Collection("jobs"),
	}
}

// SavePending records an accepted job before any delivery attempt. A row
// still pending after a restart is a job the process died with.
func (js *JobsStorage) SavePending(ctx context.Context, outcome *JobOutcome) error {
	return js.upsert(ctx, outcome)
}

func (js *JobsStorage) SaveOutcome(ctx context.Context, outcome *JobOutcome) error {
	return js.upsert(ctx, outcome)
}

func (js *JobsStorage) upsert(ctx context.Context, outcome *JobOutcome) error {
	crit := bson.D{{Key: "jobId", Value: outcome.JobId}}
	update := bson.D{{Key: "$set", Value: outcome}}
	t := true
	opts := &options.UpdateOptions{Upsert: &t}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := js.jobsColl.UpdateOne(mctx, crit, update, opts)
	if err != nil {
		return fmt.Errorf("save job outcome: %w", err)
	}
	return nil
}

// FailPending marks every unfinished job of one account failed: rows left
// pending by a dead process, plus anything the live scheduler has not
// finished yet. Called when the account is revoked or stopped.
func (js *JobsStorage) FailPending(ctx context.Context, accountId int64, reason string) error {
	crit := bson.M{"accountId": accountId, "state": bson.M{"$in": []string{
		consts.JobStatePending, consts.JobStateInFlight, consts.JobStateRetrying,
	}}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: consts.JobStateFailed}, {Key: "reason", Value: reason}, {Key: "finishedAt", Value: time.Now()}}}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := js.jobsColl.UpdateMany(mctx, crit, update)
	if err != nil {
		return fmt.Errorf("fail pending jobs: %w", err)
	}
	return nil
}
