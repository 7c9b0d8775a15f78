package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	CustomerID string               `bson:"customer_id"`
	Items      []itemDocument       `bson:"items"`
	TotalPrice primitive.Decimal128 `bson:"total_price"`
	Version    int64                `bson:"version"`
	CreatedAt  time.Time            `bson:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at"`
}

type itemDocument struct {
	ID        string               `bson:"id"`
	ProductID string               `bson:"product_id"`
	Name      string               `bson:"name,omitempty"`
	Image     string               `bson:"image,omitempty"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
	AddedAt   time.Time            `bson:"added_at"`
}

// MongoRepository is the MongoDB backed CartRepository. One document per customer.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	now := time.Now().UTC()
	zero, _ := primitive.ParseDecimal128("0")

	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"items":       bson.A{},
			"total_price": zero,
			"version":     int64(0),
			"created_at":  now,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc cartDocument
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// lost the insert race to another request; the cart exists now
		return m.GetCart(ctx, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get or create cart: %w", domain.ErrStorage, err)
	}

	return doc.toDomain()
}

func (m *MongoRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	var doc cartDocument

	filter := bson.M{"customer_id": customerID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("%w: failed to get cart: %w", domain.ErrStorage, err)
	}

	return doc.toDomain()
}

func (m *MongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now().UTC()

	items, err := toItemDocuments(cart.Items)
	if err != nil {
		return err
	}
	cart.TotalPrice = domain.CalculateTotal(cart.Items)
	total, err := toDecimal128(cart.TotalPrice)
	if err != nil {
		return err
	}

	filter := bson.M{
		"customer_id": cart.CustomerID,
		"version":     cart.Version,
	}
	update := bson.M{
		"$set": bson.M{
			"items":       items,
			"total_price": total,
			"updated_at":  now,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: failed to save cart: %w", domain.ErrStorage, err)
	}

	if result.MatchedCount == 0 {
		count, errCount := m.collection.CountDocuments(ctx, bson.M{"customer_id": cart.CustomerID})
		if errCount != nil {
			return fmt.Errorf("%w: failed to check cart: %w", domain.ErrStorage, errCount)
		}
		if count == 0 {
			return domain.ErrCartNotFound
		}
		return domain.ErrVersionConflict
	}

	cart.Version++
	cart.UpdatedAt = now
	return nil
}

func (m *MongoRepository) ClearCart(ctx context.Context, customerID string) error {
	zero, _ := primitive.ParseDecimal128("0")

	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$set": bson.M{
			"items":       bson.A{},
			"total_price": zero,
			"updated_at":  time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%w: failed to clear cart: %w", domain.ErrStorage, err)
	}

	if result.MatchedCount == 0 {
		return domain.ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:         d.ID.Hex(),
		CustomerID: d.CustomerID,
		Items:      make([]domain.CartItem, 0, len(d.Items)),
		Version:    d.Version,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}

	for _, item := range d.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     price,
			AddedAt:   item.AddedAt,
		})
	}

	// total is derived, never trusted from storage
	cart.TotalPrice = domain.CalculateTotal(cart.Items)
	return cart, nil
}

func toItemDocuments(items []domain.CartItem) ([]itemDocument, error) {
	docs := make([]itemDocument, 0, len(items))
	for _, item := range items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return nil, err
		}
		docs = append(docs, itemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     price,
			AddedAt:   item.AddedAt,
		})
	}
	return docs, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode price %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price %s: %w", v, err)
	}
	return d, nil
}
