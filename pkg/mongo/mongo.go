// Package mongo persists moderated comments and contact messages.
// The store is append-only from the service's point of view: records
// are created with their approval flag fixed by the moderation
// decision; flipping it later is a reviewer concern outside this
// service.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moderation/pkg/models"
)

var (
	ErrConnectDB       = fmt.Errorf("unable to establish DB connection")
	ErrDBNotResponding = fmt.Errorf("DB not responding")

	ErrAuthorNotProvided  = fmt.Errorf("comment author not provided")
	ErrContentNotProvided = fmt.Errorf("comment content not provided")
	ErrMessageIncomplete  = fmt.Errorf("contact message incomplete")
)

// ApprovedPageSize bounds a single retrieval of approved comments.
const ApprovedPageSize = 50

type Storage struct {
	client *mongo.Client
	dbName string
}

func New(conf *Config) (*Storage, error) {
	opt := conf.Options()
	client, err := mongo.Connect(context.Background(), opt)
	if err != nil {
		return nil, err
	}

	s := Storage{client: client, dbName: conf.DBName}
	s.createCollection("comments")
	s.createCollection("messages")

	return &s, nil
}

func (s *Storage) Ping() error {
	return s.client.Ping(context.Background(), nil)
}

func (s *Storage) Close(ctx context.Context) {
	s.client.Disconnect(ctx)
}

// CreateComment inserts a moderated comment.
//
// Validates that the author identity and content are present. If the
// comment's ID or Created timestamp are zero values, they are assigned
// here. The Approved flag is stored exactly as decided by the caller
// and never mutated afterwards.
func (s *Storage) CreateComment(comment models.Comment) (models.Comment, error) {
	if comment.Author.ID == "" {
		return models.Comment{}, ErrAuthorNotProvided
	}
	if comment.Content == "" {
		return models.Comment{}, ErrContentNotProvided
	}

	if comment.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Comment{}, err
		}
		comment.ID = id
	}

	if comment.Created.IsZero() {
		comment.Created = time.Now()
	}

	coll := s.client.Database(s.dbName).Collection("comments")
	_, err := coll.InsertOne(context.Background(), comment)
	if err != nil {
		return models.Comment{}, err
	}

	return comment, nil
}

// ApprovedComments returns approved comments sorted by creation time
// descending, limited to ApprovedPageSize. Held and rejected content
// never appears here.
func (s *Storage) ApprovedComments() ([]models.Comment, error) {
	coll := s.client.Database(s.dbName).Collection("comments")
	opts := options.Find().
		SetSort(bson.D{{Key: "created", Value: -1}}).
		SetLimit(ApprovedPageSize)

	cur, err := coll.Find(context.Background(), bson.M{"approved": true}, opts)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := cur.All(context.Background(), &comments); err != nil {
		return nil, err
	}

	return comments, nil
}

// CreateMessage inserts a contact form message.
func (s *Storage) CreateMessage(msg models.Message) (models.Message, error) {
	if msg.Name == "" || msg.Email == "" || msg.Text == "" {
		return models.Message{}, ErrMessageIncomplete
	}

	if msg.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Message{}, err
		}
		msg.ID = id
	}

	if msg.Created.IsZero() {
		msg.Created = time.Now()
	}

	coll := s.client.Database(s.dbName).Collection("messages")
	_, err := coll.InsertOne(context.Background(), msg)
	if err != nil {
		return models.Message{}, err
	}

	return msg, nil
}

// createCollection creates a collection with the given name in the database if it doesn't already exist.
func (s *Storage) createCollection(collName string) error {
	collExists, err := collectionExists(s.client.Database(s.dbName), collName)
	if err != nil {
		return err
	}

	if !collExists {
		err := s.client.Database(s.dbName).CreateCollection(context.Background(), collName)
		if err != nil {
			return err
		}
	}

	return nil
}

// collectionExists checks if a collection with the given name exists in the database.
func collectionExists(db *mongo.Database, collName string) (bool, error) {
	names, err := db.ListCollectionNames(context.Background(), bson.D{})
	if err != nil {
		return false, fmt.Errorf("failed to list collection names: %w", err)
	}

	for _, name := range names {
		if name == collName {
			return true, nil
		}
	}

	return false, nil
}
