// Package store provides typed repositories over the document store. They
// decode documents into domain types and pass sentinel errors through;
// translating those into domain errors is the services' job.
package store

import (
	"context"
	"fmt"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
)

// Versioned is implemented by domain types that track their store etag.
type Versioned interface {
	SetVersion(v int64)
}

// Repo is a typed view of one collection.
type Repo[T any] struct {
	store docstore.Store
	coll  docstore.Collection
}

// NewRepo binds a collection to a value type.
func NewRepo[T any](store docstore.Store, coll docstore.Collection) *Repo[T] {
	return &Repo[T]{store: store, coll: coll}
}

// Collection is the bound collection name.
func (r *Repo[T]) Collection() docstore.Collection { return r.coll }

// Store exposes the underlying store for field-path updates.
func (r *Repo[T]) Store() docstore.Store { return r.store }

func decode[T any](doc docstore.Document) (*T, error) {
	v := new(T)
	if err := doc.Decode(v); err != nil {
		return nil, err
	}
	if vv, ok := any(v).(Versioned); ok {
		vv.SetVersion(doc.Version)
	}
	return v, nil
}

// Get loads the document with id.
func (r *Repo[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := r.store.Get(ctx, r.coll, id)
	if err != nil {
		return nil, err
	}
	return decode[T](doc)
}

// Find loads every matching document in insertion order.
func (r *Repo[T]) Find(ctx context.Context, filters ...docstore.Filter) ([]*T, error) {
	docs, err := r.store.Find(ctx, r.coll, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FindFirst returns the first match in insertion order.
func (r *Repo[T]) FindFirst(ctx context.Context, filters ...docstore.Filter) (*T, string, error) {
	docs, err := r.store.Find(ctx, r.coll, filters...)
	if err != nil {
		return nil, "", err
	}
	if len(docs) == 0 {
		return nil, "", fmt.Errorf("%s: %w", r.coll, sentinel.ErrNotFound)
	}
	v, err := decode[T](docs[0])
	if err != nil {
		return nil, "", err
	}
	return v, docs[0].ID, nil
}

// FindIDs returns the document ids of every match.
func (r *Repo[T]) FindIDs(ctx context.Context, filters ...docstore.Filter) ([]string, error) {
	docs, err := r.store.Find(ctx, r.coll, filters...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

// Create stores v under id and returns the assigned document id.
func (r *Repo[T]) Create(ctx context.Context, id string, v *T) (string, error) {
	doc, err := r.store.Create(ctx, r.coll, id, v)
	if err != nil {
		return "", err
	}
	if vv, ok := any(v).(Versioned); ok {
		vv.SetVersion(doc.Version)
	}
	return doc.ID, nil
}

// Replace overwrites the document, guarded by ifVersion when positive.
func (r *Repo[T]) Replace(ctx context.Context, id string, v *T, ifVersion int64) (*T, error) {
	doc, err := r.store.Replace(ctx, r.coll, id, v, ifVersion)
	if err != nil {
		return nil, err
	}
	return decode[T](doc)
}

// Update applies field-path mutations, guarded by ifVersion when positive.
func (r *Repo[T]) Update(ctx context.Context, id string, ifVersion int64, mutations ...docstore.Mutation) (*T, error) {
	doc, err := r.store.Update(ctx, r.coll, id, ifVersion, mutations...)
	if err != nil {
		return nil, err
	}
	return decode[T](doc)
}

// Delete removes the document; absent ids are a no-op.
func (r *Repo[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.coll, id)
}
