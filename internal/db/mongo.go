package db

import (
	"context"
	"log"
	"time"

	"github.com/TeleOle/auto-forward/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DbAccountData is one linked source account with a persisted tdlib session.
// Only accounts in active status are picked up by the account store.
type DbAccountData struct {
	Id      int64  `bson:"id"`
	UserId  int64  `bson:"userId"`
	Phone   string `bson:"phone"`
	DataDir string `bson:"datadir"`
	Status  string `bson:"status"`
}

// DbUserData is the bot's end user; owns accounts and rules.
type DbUserData struct {
	Id        int64     `bson:"id"`
	Username  string    `bson:"username"`
	FirstName string    `bson:"firstName"`
	CreatedAt time.Time `bson:"createdAt"`
}

func NewClient(cfg *config.Config) *mongo.Client {
	rb := bson.NewRegistryBuilder()

	registry := rb.Build()
	clientOptions := options.Client().ApplyURI(cfg.MongoUri).SetRegistry(registry)

	var err error
	mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(mctx, clientOptions)
	if err != nil {
		log.Fatalf("Mongo error: %s", err)
		return nil
	}

	return client
}
