package catalog

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirestoreStore reads the vehicles collection from Firestore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(ctx context.Context, projectID, credentialsFile, collection string) (*FirestoreStore, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	if collection == "" {
		collection = "vehicles"
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (f *FirestoreStore) ListVehicles(ctx context.Context) ([]Document, error) {
	iter := f.client.Collection(f.collection).Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate vehicles: %w", err)
		}
		data := snap.Data()
		docs = append(docs, Document{
			ID:           snap.Ref.ID,
			Name:         asString(data["name"]),
			BasePrice:    asString(data["basePrice"]),
			PricePerKm:   asString(data["pricePerKm"]),
			PricePerHour: asString(data["pricePerHour"]),
			Passengers:   asString(data["passengers"]),
			Luggage:      asString(data["luggage"]),
			ImageURL:     asString(data["imageUrl"]),
		})
	}
	return docs, nil
}

func (f *FirestoreStore) Close() error { return f.client.Close() }

// asString normalizes schemaless field values; numbers written as
// numbers still round-trip through the string parser.
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
