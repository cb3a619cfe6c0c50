package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jwalitptl/notification-service/internal/model"
	"github.com/jwalitptl/notification-service/internal/repository"
)

const collectionName = "notifications"

type notificationDoc struct {
	NotificationID   string     `bson:"notification_id"`
	RecipientName    string     `bson:"recipient_name"`
	RecipientEmail   *string    `bson:"recipient_email"`
	RecipientPhone   *string    `bson:"recipient_phone"`
	NotificationType string     `bson:"notification_type"`
	EventType        string     `bson:"event_type"`
	Subject          string     `bson:"subject"`
	Message          string     `bson:"message"`
	OrderID          *int64     `bson:"order_id"`
	PaymentID        *int64     `bson:"payment_id"`
	ShipmentID       *int64     `bson:"shipment_id"`
	Metadata         bson.M     `bson:"metadata"`
	DedupKey         *string    `bson:"dedup_key"`
	Status           string     `bson:"status"`
	ErrorMessage     *string    `bson:"error_message"`
	CreatedAt        time.Time  `bson:"created_at"`
	SentAt           *time.Time `bson:"sent_at"`
	DeliveredAt      *time.Time `bson:"delivered_at"`
	RetryCount       int        `bson:"retry_count"`
	MaxRetries       int        `bson:"max_retries"`
}

type notificationRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewNotificationRepository ensures indexes and returns the store.
func NewNotificationRepository(ctx context.Context, client *mongo.Client, database string) (repository.NotificationRepository, error) {
	coll := client.Database(database).Collection(collectionName)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "notification_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &notificationRepository{client: client, coll: coll}, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if _, err := r.coll.InsertOne(ctx, toDoc(n)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetByNotificationID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var doc notificationDoc
	err := r.coll.FindOne(ctx, bson.M{"notification_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return fromDoc(&doc)
}

func (r *notificationRepository) Update(ctx context.Context, n *model.Notification) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"notification_id": n.NotificationID.String()}, toDoc(n))
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) UpdateIf(ctx context.Context, n *model.Notification, cond repository.Precondition) error {
	res, err := r.coll.ReplaceOne(ctx, guardFilter(n.NotificationID, cond), toDoc(n))
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"notification_id": n.NotificationID.String()})
	if err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func guardFilter(id uuid.UUID, cond repository.Precondition) bson.M {
	f := bson.M{
		"notification_id": id.String(),
		"status":          string(cond.Status),
	}
	if cond.RetryCount != nil {
		f["retry_count"] = *cond.RetryCount
	}
	return f
}

func (r *notificationRepository) List(ctx context.Context, filter model.NotificationFilter, page model.Pagination) ([]*model.Notification, error) {
	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.PageSize))

	cur, err := r.coll.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cur.Close(ctx)

	notifications := make([]*model.Notification, 0)
	for cur.Next(ctx) {
		var doc notificationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode notification: %w", err)
		}
		n, err := fromDoc(&doc)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) Count(ctx context.Context, filter model.NotificationFilter) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return total, nil
}

func (r *notificationRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *notificationRepository) Close() error {
	return r.client.Disconnect(context.Background())
}

func buildFilter(f model.NotificationFilter) bson.M {
	m := bson.M{}
	if f.Type != "" {
		m["notification_type"] = string(f.Type)
	}
	if f.EventType != "" {
		m["event_type"] = string(f.EventType)
	}
	if f.Status != "" {
		m["status"] = string(f.Status)
	}
	if f.OrderID != nil {
		m["order_id"] = *f.OrderID
	}
	if f.RetryableOnly {
		m["status"] = string(model.NotificationStatusFailed)
		m["$expr"] = bson.M{"$lt": bson.A{"$retry_count", "$max_retries"}}
	}
	return m
}

func toDoc(n *model.Notification) *notificationDoc {
	return &notificationDoc{
		NotificationID:   n.NotificationID.String(),
		RecipientName:    n.RecipientName,
		RecipientEmail:   n.RecipientEmail,
		RecipientPhone:   n.RecipientPhone,
		NotificationType: string(n.NotificationType),
		EventType:        string(n.EventType),
		Subject:          n.Subject,
		Message:          n.Message,
		OrderID:          n.OrderID,
		PaymentID:        n.PaymentID,
		ShipmentID:       n.ShipmentID,
		Metadata:         toBSONMap(n.Metadata),
		DedupKey:         n.DedupKey,
		Status:           string(n.Status),
		ErrorMessage:     n.ErrorMessage,
		CreatedAt:        n.CreatedAt,
		SentAt:           n.SentAt,
		DeliveredAt:      n.DeliveredAt,
		RetryCount:       n.RetryCount,
		MaxRetries:       n.MaxRetries,
	}
}

func fromDoc(d *notificationDoc) (*model.Notification, error) {
	id, err := uuid.Parse(d.NotificationID)
	if err != nil {
		return nil, fmt.Errorf("invalid notification_id %q: %w", d.NotificationID, err)
	}
	meta, _ := fromBSON(d.Metadata).(map[string]interface{})
	return &model.Notification{
		NotificationID:   id,
		RecipientName:    d.RecipientName,
		RecipientEmail:   d.RecipientEmail,
		RecipientPhone:   d.RecipientPhone,
		NotificationType: model.NotificationType(d.NotificationType),
		EventType:        model.EventType(d.EventType),
		Subject:          d.Subject,
		Message:          d.Message,
		OrderID:          d.OrderID,
		PaymentID:        d.PaymentID,
		ShipmentID:       d.ShipmentID,
		Metadata:         model.JSONMap(meta),
		DedupKey:         d.DedupKey,
		Status:           model.NotificationStatus(d.Status),
		ErrorMessage:     d.ErrorMessage,
		CreatedAt:        d.CreatedAt,
		SentAt:           d.SentAt,
		DeliveredAt:      d.DeliveredAt,
		RetryCount:       d.RetryCount,
		MaxRetries:       d.MaxRetries,
	}, nil
}

// toBSONMap converts json.Number leaves to int64 or float64 so they are
// stored as numbers rather than strings.
func toBSONMap(m model.JSONMap) bson.M {
	out := bson.M{}
	for k, v := range m {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		return toBSONMap(t)
	case []interface{}:
		a := make(bson.A, len(t))
		for i := range t {
			a[i] = toBSONValue(t[i])
		}
		return a
	default:
		return v
	}
}

func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = fromBSON(t[i])
		}
		return out
	default:
		return v
	}
}
