package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson" // 引入 bson 套件
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"batchchat/logger"
	"batchchat/models"
)

const (
	messagesCollection = "messages"
	batchesCollection  = "batches"
)

// MongoDB 持有連線與資料庫
type MongoDB struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectMongoDB 建立並初始化 MongoDB 連線
func ConnectMongoDB(ctx context.Context, uri, name string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	// Ping the primary to verify connection
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	l := logger.L()
	l.Info().Str("db", name).Msg("Connected to MongoDB successfully!")
	return &MongoDB{Client: client, DB: client.Database(name)}, nil
}

// Disconnect 關閉 MongoDB 連線
func (m *MongoDB) Disconnect() {
	if m == nil || m.Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l := logger.L()
	if err := m.Client.Disconnect(ctx); err != nil {
		l.Error().Err(err).Msg("Error disconnecting from MongoDB")
		return
	}
	l.Info().Msg("Disconnected from MongoDB.")
}

// messageDocument 是 messages 集合中的文件格式
type messageDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	BatchID           string             `bson:"batchId"`
	AuthorID          string             `bson:"authorId"`
	AuthorDisplayName string             `bson:"authorDisplayName"`
	Body              string             `bson:"body"`
	SentAt            time.Time          `bson:"sentAt"`
}

func (d messageDocument) toModel() models.ChatMessage {
	return models.ChatMessage{
		ID:                d.ID.Hex(),
		BatchID:           d.BatchID,
		AuthorID:          d.AuthorID,
		AuthorDisplayName: d.AuthorDisplayName,
		Body:              d.Body,
		SentAt:            d.SentAt.UTC(),
	}
}

// MongoMessageStore 以 messages 集合實作 MessageStore
type MongoMessageStore struct {
	messages *mongo.Collection
}

// NewMongoMessageStore 建立 store 並確保查詢歷史訊息用的複合索引存在
// 訊息是永久保存的，不建立 TTL 索引
func NewMongoMessageStore(ctx context.Context, db *mongo.Database) (*MongoMessageStore, error) {
	coll := db.Collection(messagesCollection)

	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "batchId", Value: 1},
			{Key: "sentAt", Value: -1}, // -1 代表降序(由新到舊)
			{Key: "_id", Value: -1},
		},
		Options: options.Index().SetName("batch_history"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("create history index for messages collection: %w", err)
	}

	return &MongoMessageStore{messages: coll}, nil
}

// Append 將新的聊天訊息插入到 MongoDB
func (s *MongoMessageStore) Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	doc := messageDocument{
		BatchID:           msg.BatchID,
		AuthorID:          msg.AuthorID,
		AuthorDisplayName: msg.AuthorDisplayName,
		Body:              msg.Body,
		SentAt:            msg.SentAt.UTC().Truncate(time.Millisecond), // BSON 日期只保留到毫秒
	}

	result, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: insert message: %w", models.ErrStoreUnavailable, err)
	}

	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.ChatMessage{}, fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	doc.ID = id
	return doc.toModel(), nil
}

// ListByBatch 獲取指定批次的歷史訊息，由新到舊
func (s *MongoMessageStore) ListByBatch(ctx context.Context, batchID string, q models.HistoryQuery) (models.HistoryPage, error) {
	q = q.Normalize()

	filter := bson.M{"batchId": batchID}
	if q.Before != "" {
		sentAt, id, err := models.DecodeCursor(q.Before)
		if err != nil {
			return models.HistoryPage{}, err
		}
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return models.HistoryPage{}, fmt.Errorf("%w: %q", models.ErrInvalidCursor, q.Before)
		}
		filter["$or"] = bson.A{
			bson.M{"sentAt": bson.M{"$lt": sentAt}},
			bson.M{"sentAt": sentAt, "_id": bson.M{"$lt": oid}},
		}
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "sentAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(q.Limit + 1)) // 多取一筆用來判斷是否還有下一頁

	cursor, err := s.messages.Find(ctx, filter, findOptions)
	if err != nil {
		return models.HistoryPage{}, fmt.Errorf("%w: find chat history for batch %s: %w", models.ErrStoreUnavailable, batchID, err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return models.HistoryPage{}, fmt.Errorf("decode chat history for batch %s: %w", batchID, err)
	}

	msgs := make([]models.ChatMessage, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toModel())
	}
	return buildPage(msgs, q.Limit), nil
}

// MongoMembership 讀取課程系統維護的 batches 集合，確認使用者是否為成員
type MongoMembership struct {
	batches *mongo.Collection
}

func NewMongoMembership(db *mongo.Database) *MongoMembership {
	return &MongoMembership{batches: db.Collection(batchesCollection)}
}

// CanJoin 批次與使用者的 ID 可能存成字串或 ObjectID，兩種都要比對
func (m *MongoMembership) CanJoin(ctx context.Context, batchID, userID string) (bool, error) {
	filter := bson.M{
		"_id":     bson.M{"$in": idVariants(batchID)},
		"members": bson.M{"$in": idVariants(userID)},
	}
	n, err := m.batches.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check membership of batch %s: %w", batchID, err)
	}
	return n > 0, nil
}

func idVariants(id string) bson.A {
	ids := bson.A{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		ids = append(ids, oid)
	}
	return ids
}
