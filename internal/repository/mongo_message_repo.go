package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMessageRepository struct {
	coll *mongo.Collection
}

func NewMongoMessageRepository(ctx context.Context, coll *mongo.Collection) (*MongoMessageRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("conversation_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "receiver", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("conversation_receiver_status_idx"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("message indexes: %w", err)
	}
	return &MongoMessageRepository{coll: coll}, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	// mongo keeps millisecond precision; truncate so reads match writes
	m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	m.Status = domain.StatusSent
	m.DeliveredAt, m.ReadAt = nil, nil
	if m.Type == "" {
		m.Type = domain.MessageText
	}
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MongoMessageRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NotFound("message")
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoMessageRepository) GetMessages(ctx context.Context, ids []string) (map[string]*domain.Message, error) {
	out := make(map[string]*domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out[m.ID] = &m
	}
	return out, cur.Err()
}

func (r *MongoMessageRepository) ListByConversation(ctx context.Context, convID string, page, pageSize int) (*domain.MessagePage, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if page < 1 || pageSize < 1 || page-1 > math.MaxInt/pageSize {
		return nil, domain.Invalid("page out of range")
	}
	filter := bson.M{"conversation_id": convID}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page-1) * int64(pageSize)).
		SetLimit(int64(pageSize))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// return in chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return domain.NewMessagePage(msgs, page, pageSize, total), nil
}

func (r *MongoMessageRepository) AdvanceStatus(ctx context.Context, id string, to domain.Status) (*domain.Message, bool, error) {
	if !to.Valid() {
		return nil, false, domain.Invalid("unknown status " + string(to))
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{"status": to}
	switch to {
	case domain.StatusDelivered:
		set["delivered_at"] = now
	case domain.StatusRead:
		set["read_at"] = now
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": to.Preceding()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}
	// either missing or already at or past the target
	cur, err := r.GetMessage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

func (r *MongoMessageRepository) MarkManyRead(ctx context.Context, convID, recipient, sender string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	filter := bson.M{
		"conversation_id": convID,
		"sender":          sender,
		"receiver":        recipient,
		"status":          bson.M{"$ne": domain.StatusRead},
	}
	update := bson.M{"$set": bson.M{"status": domain.StatusRead, "read_at": time.Now().UTC()}}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageRepository) Remove(ctx context.Context, id, requester string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id, "sender": requester}).Decode(&m)
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, err := r.GetMessage(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrForbidden
}
