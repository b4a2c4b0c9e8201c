package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConversationRepository struct {
	coll *mongo.Collection
}

func NewMongoConversationRepository(ctx context.Context, coll *mongo.Collection) (*MongoConversationRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("pair_key_uniq"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("participants_updated_idx"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation indexes: %w", err)
	}
	return &MongoConversationRepository{coll: coll}, nil
}

func (r *MongoConversationRepository) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	if a == b {
		return nil, domain.Invalid("a conversation needs two distinct participants")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	conv := domain.NewConversation(primitive.NewObjectID().Hex(), a, b, now)
	filter := bson.M{"pair_key": conv.PairKey}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":           conv.ID,
		"participants":  conv.Participants,
		"unread_counts": conv.UnreadCounts,
		"created_at":    now,
		"updated_at":    now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out domain.Conversation
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the winner's document is now visible
		err = r.coll.FindOne(ctx, filter).Decode(&out)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MongoConversationRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var c domain.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NotFound("conversation")
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoConversationRepository) ListForUser(ctx context.Context, user string) ([]*domain.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"participants": user}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *MongoConversationRepository) RecordNewMessage(ctx context.Context, convID string, msg *domain.Message, recipient string) error {
	first, second := domain.OrderPair(msg.Sender, msg.Receiver)
	slot := 0
	switch recipient {
	case first:
	case second:
		slot = 1
	default:
		return domain.Invalid("recipient is not part of the message")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	update := bson.M{
		"$set": bson.M{"last_message_id": msg.ID, "updated_at": msg.CreatedAt},
		"$inc": bson.M{fmt.Sprintf("unread_counts.%d", slot): 1},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": convID, "participants": recipient}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFound("conversation")
	}
	return nil
}

func (r *MongoConversationRepository) MarkRead(ctx context.Context, convID, user string) error {
	conv, err := r.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	slot := conv.Slot(user)
	if slot < 0 {
		return domain.ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err = r.coll.UpdateByID(ctx, convID, bson.M{"$set": bson.M{fmt.Sprintf("unread_counts.%d", slot): 0}})
	return err
}
