package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"telegram-points-bot/internal/config"
	"telegram-points-bot/internal/model"
)

// scoreDocument is the stored shape of a users document.
// The ObjectID carries insertion order for leaderboard ties.
type scoreDocument struct {
	ObjectID        primitive.ObjectID `bson:"_id,omitempty"`
	model.UserScore `bson:",inline"`
}

// MongoStore handles score persistence in MongoDB.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	logs   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg *config.StoreConfig) (*MongoStore, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.PoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.PoolSize))
	}
	if cfg.MaxConnIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.MaxConnIdleTime)
	}
	if cfg.TLSInsecure {
		log.Warn().Msg("MongoDB TLS certificate verification disabled")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in via store.tls_insecure
	}

	log.Info().
		Str("database", cfg.Database).
		Msg("Connecting to MongoDB")

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info().Msg("Successfully connected to MongoDB")

	return NewMongoStoreFromClient(client, cfg.Database), nil
}

// NewMongoStoreFromClient wraps an existing client.
func NewMongoStoreFromClient(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client: client,
		users:  db.Collection(UsersCollection),
		logs:   db.Collection(LogsCollection),
	}
}

// Migrate ensures the indexes exist.
func (r *MongoStore) Migrate(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}, {Key: "group_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_users_username_group"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "points", Value: -1}},
			Options: options.Index().SetName("idx_users_group_points"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	_, err = r.logs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "time", Value: -1}},
		Options: options.Index().SetName("idx_logs_group_time"),
	})
	if err != nil {
		return fmt.Errorf("failed to create logs index: %w", err)
	}

	log.Info().Msg("MongoDB indexes ensured")
	return nil
}

// Get retrieves a score document by key.
// Returns ErrScoreNotFound if the document does not exist.
func (r *MongoStore) Get(ctx context.Context, key model.ScoreKey) (*model.UserScore, error) {
	var doc scoreDocument
	err := r.users.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return doc.score(), nil
}

// UpsertIncrement applies $inc with upsert and returns the document after the update.
func (r *MongoStore) UpsertIncrement(ctx context.Context, inc Increment) (*model.UserScore, error) {
	now := time.Now().UTC()

	set := bson.M{
		"group_name": inc.GroupName,
		"updated_at": now,
	}
	if inc.ClaimedAt != nil {
		set["last_claim"] = inc.ClaimedAt.UTC()
	}
	update := bson.M{
		"$inc":         bson.M{"points": inc.Delta},
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc scoreDocument
	err := r.users.FindOneAndUpdate(ctx, keyFilter(inc.Key), update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two concurrent upserts raced on insert; the loser retries as an update.
		err = r.users.FindOneAndUpdate(ctx, keyFilter(inc.Key), update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment score: %w", err)
	}
	return doc.score(), nil
}

// SetPoints sets a document's points to an exact value without upserting.
func (r *MongoStore) SetPoints(ctx context.Context, key model.ScoreKey, points int64) (bool, error) {
	res, err := r.users.UpdateOne(ctx, keyFilter(key), bson.M{
		"$set": bson.M{"points": points, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, fmt.Errorf("failed to set points: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// TopN retrieves the top n documents of a group by points.
func (r *MongoStore) TopN(ctx context.Context, groupID int64, n int) ([]*model.UserScore, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(n))

	cursor, err := r.users.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get top scores: %w", err)
	}

	var docs []scoreDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}

	scores := make([]*model.UserScore, 0, len(docs))
	for i := range docs {
		scores = append(scores, docs[i].score())
	}
	return scores, nil
}

// AppendLog inserts an award audit document.
func (r *MongoStore) AppendLog(ctx context.Context, entry *model.AwardLogEntry) error {
	doc := *entry
	doc.Time = entry.Time.UTC()
	if _, err := r.logs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append award log: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (r *MongoStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *MongoStore) Close(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect mongodb: %w", err)
	}
	log.Info().Msg("MongoDB connection closed")
	return nil
}

func keyFilter(key model.ScoreKey) bson.M {
	return bson.M{"username": key.Username, "group_id": key.GroupID}
}

func (d *scoreDocument) score() *model.UserScore {
	s := d.UserScore
	return &s
}
