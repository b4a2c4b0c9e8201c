package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/messaging-service/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const opTimeout = 3 * time.Second

// NewMongoClient connects and pings, retrying with exponential backoff for
// up to cfg.ConnectRetry.
func NewMongoClient(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*mongo.Client, error) {
	var client *mongo.Client
	operation := func() error {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return err
		}
		if err := c.Ping(cctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectRetry
	notify := func(err error, wait time.Duration) {
		log.Warnw("mongo connect failed, retrying", "err", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}

// Stores bundles the mongo-backed repositories over one database.
type Stores struct {
	Conversations *MongoConversationRepository
	Messages      *MongoMessageRepository
	Users         *MongoUserRepository
}

func NewMongoStores(ctx context.Context, db *mongo.Database, cfg *config.Config) (*Stores, error) {
	convs, err := NewMongoConversationRepository(ctx, db.Collection(cfg.Mongo.ConversationsCollection))
	if err != nil {
		return nil, err
	}
	msgs, err := NewMongoMessageRepository(ctx, db.Collection(cfg.Mongo.MessagesCollection))
	if err != nil {
		return nil, err
	}
	return &Stores{
		Conversations: convs,
		Messages:      msgs,
		Users:         NewMongoUserRepository(db.Collection(cfg.Mongo.UsersCollection)),
	}, nil
}
