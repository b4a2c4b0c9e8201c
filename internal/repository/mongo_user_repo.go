package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// userDoc mirrors the job-board's users collection, which this service
// shares but does not own.
type userDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	Role         string             `bson:"role"`
	ProfilePhoto struct {
		URL string `bson:"url"`
	} `bson:"profilePhoto"`
	IsOnline bool      `bson:"isOnline"`
	LastSeen time.Time `bson:"lastSeen"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Role:         domain.UserRole(d.Role),
		ProfilePhoto: d.ProfilePhoto.URL,
		IsOnline:     d.IsOnline,
		LastSeen:     d.LastSeen,
	}
}

var userProjection = bson.M{"password": 0}

type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(coll *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

func (r *MongoUserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.NotFound("user")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var d userDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(userProjection)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.NotFound("user")
		}
		return nil, err
	}
	return d.toDomain(), nil
}

func (r *MongoUserRepository) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find().SetProjection(userProjection))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		u := d.toDomain()
		out[u.ID] = u
	}
	return out, cur.Err()
}

func (r *MongoUserRepository) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.NotFound("user")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"isOnline": online, "lastSeen": at.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFound("user")
	}
	return nil
}
