package attendance

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding attendance documents.
const DefaultCollection = "attendance"

// FirestoreStore keeps one document per identity key with fields name, email
// and dates (an array used as a set).
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a store over collection (DefaultCollection if empty).
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(key)
}

func (s *FirestoreStore) Get(ctx context.Context, key string) (*Record, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore get %s: %w", key, err)
	}
	rec, err := DecodeRecord(key, snap.Data())
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FirestoreStore) Create(ctx context.Context, rec Record) error {
	if _, err := checkDates(rec.Dates); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Key, err)
	}
	dates := rec.Dates
	if dates == nil {
		dates = []string{}
	}
	_, err := s.doc(rec.Key).Create(ctx, map[string]interface{}{
		"name":  rec.Name,
		"email": rec.Email,
		"dates": dates,
	})
	if status.Code(err) == codes.AlreadyExists {
		return ErrRecordExists
	}
	if err != nil {
		return fmt.Errorf("firestore create %s: %w", rec.Key, err)
	}
	return nil
}

// AppendDate merges date into the dates array with ArrayUnion, which the
// server applies atomically and without duplicates.
func (s *FirestoreStore) AppendDate(ctx context.Context, key, date, name, email string) error {
	if !ValidDate(date) {
		return fmt.Errorf("%w: %s: invalid date %q", ErrMalformedRecord, key, date)
	}
	data := map[string]interface{}{
		"dates": firestore.ArrayUnion(date),
		"email": email,
	}
	if name != "" {
		data["name"] = name
	}
	if _, err := s.doc(key).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("firestore append %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]Record, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var res []Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list: %w", err)
		}
		rec, err := DecodeRecord(snap.Ref.ID, snap.Data())
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}
