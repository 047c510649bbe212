// Package mongo is the MongoDB docstore backend.
//
// Each collection maps to a Mongo collection of the same name. Documents keep
// their body fields at the top level next to three bookkeeping fields:
// _id (document id), _version (etag), and _created (insertion order).
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
)

const (
	fieldID      = "_id"
	fieldVersion = "_version"
	fieldCreated = "_created"

	// Server error codes for mutations that cross a non-container value.
	codeBadValue      = 2
	codePathNotViable = 28
)

// Store implements docstore.Store on a Mongo database.
type Store struct {
	db      *mongo.Database
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New wraps an already connected database.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and returns a Store on database. The caller owns the
// returned client and must Disconnect it.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client.Database(database), opts...), client, nil
}

// EnsureIndexes creates the insertion-order index on every collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, c := range docstore.Collections {
		_, err := s.db.Collection(string(c)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: fieldCreated, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create index on %s: %w", c, err)
		}
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, c docstore.Collection, id string) (docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.db.Collection(string(c)).FindOne(ctx, bson.D{{Key: fieldID, Value: id}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", c, err)
	}
	return fromRaw(raw)
}

func (s *Store) Find(ctx context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, err := toQuery(filters)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(string(c)).Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: fieldCreated, Value: 1}}))
	if err != nil {
		return nil, unavailable("find", c, err)
	}
	defer cur.Close(ctx)

	out := []docstore.Document{}
	for cur.Next(ctx) {
		doc, err := fromRaw(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, unavailable("find", c, err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, c docstore.Collection, id string, body any) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored := bson.M{}
	for k, v := range encoded {
		stored[k] = v
	}
	stored[fieldID] = id
	stored[fieldVersion] = int64(1)
	stored[fieldCreated] = time.Now().UnixNano()

	if _, err := s.db.Collection(string(c)).InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrAlreadyExists)
		}
		return docstore.Document{}, unavailable("create", c, err)
	}
	return docstore.Document{ID: id, Version: 1, Body: encoded}, nil
}

func (s *Store) Replace(ctx context.Context, c docstore.Collection, id string, body any, ifVersion int64) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}

	// The pipeline keeps the bookkeeping fields while swapping the body, so
	// the version bump stays atomic with the replacement.
	literal := bson.M{}
	for k, v := range encoded {
		literal[k] = v
	}
	pipeline := mongo.Pipeline{
		{{Key: "$replaceWith", Value: bson.D{{Key: "$mergeObjects", Value: bson.A{
			bson.D{{Key: "$literal", Value: literal}},
			bson.D{
				{Key: fieldID, Value: "$" + fieldID},
				{Key: fieldCreated, Value: "$" + fieldCreated},
				{Key: fieldVersion, Value: bson.D{{Key: "$add", Value: bson.A{"$" + fieldVersion, 1}}}},
			},
		}}}}},
	}
	return s.findAndUpdate(ctx, c, id, ifVersion, pipeline)
}

func (s *Store) Update(ctx context.Context, c docstore.Collection, id string, ifVersion int64, mutations ...docstore.Mutation) (docstore.Document, error) {
	update, err := toUpdate(mutations)
	if err != nil {
		return docstore.Document{}, err
	}
	return s.findAndUpdate(ctx, c, id, ifVersion, update)
}

func (s *Store) findAndUpdate(ctx context.Context, c docstore.Collection, id string, ifVersion int64, update any) (docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.D{{Key: fieldID, Value: id}}
	if ifVersion > 0 {
		filter = append(filter, bson.E{Key: fieldVersion, Value: ifVersion})
	}
	coll := s.db.Collection(string(c))
	raw, err := coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := coll.CountDocuments(ctx, bson.D{{Key: fieldID, Value: id}})
		if countErr != nil {
			return docstore.Document{}, unavailable("update", c, countErr)
		}
		if n == 0 {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
		}
		return docstore.Document{}, fmt.Errorf("%s/%s expected version %d: %w", c, id, ifVersion, sentinel.ErrConflict)
	}
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && (cmdErr.HasErrorCode(codeBadValue) || cmdErr.HasErrorCode(codePathNotViable)) {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w: %v", c, id, sentinel.ErrInvalidPath, err)
		}
		return docstore.Document{}, unavailable("update", c, err)
	}
	return fromRaw(raw)
}

func (s *Store) Delete(ctx context.Context, c docstore.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Collection(string(c)).DeleteOne(ctx, bson.D{{Key: fieldID, Value: id}}); err != nil {
		return unavailable("delete", c, err)
	}
	return nil
}

func unavailable(op string, c docstore.Collection, err error) error {
	return fmt.Errorf("mongo %s %s: %w: %v", op, c, sentinel.ErrUnavailable, err)
}

// fromRaw converts a stored document to JSON-normal form through relaxed
// extended JSON, then strips the bookkeeping fields.
func fromRaw(raw bson.Raw) (docstore.Document, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("convert mongo document: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(ext, &body); err != nil {
		return docstore.Document{}, fmt.Errorf("convert mongo document: %w", err)
	}
	id, _ := body[fieldID].(string)
	version, _ := body[fieldVersion].(float64)
	delete(body, fieldID)
	delete(body, fieldVersion)
	delete(body, fieldCreated)
	return docstore.Document{ID: id, Version: int64(version), Body: body}, nil
}

func dotted(p docstore.Path) (string, error) {
	if len(p) == 0 {
		return "", fmt.Errorf("%w: empty path", sentinel.ErrInvalidPath)
	}
	for _, seg := range p {
		if seg == "" || strings.ContainsAny(seg, ".$") {
			return "", fmt.Errorf("%w: segment %q cannot be expressed in mongo", sentinel.ErrInvalidPath, seg)
		}
	}
	return p.String(), nil
}

func toQuery(filters []docstore.Filter) (bson.D, error) {
	normalized, err := docstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	clauses := bson.A{}
	for _, f := range normalized {
		key, err := dotted(f.Path)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case docstore.FilterEq:
			clauses = append(clauses, bson.D{{Key: key, Value: f.Value}})
		case docstore.FilterGte:
			clauses = append(clauses, bson.D{{Key: key, Value: bson.D{{Key: "$gte", Value: f.Value}}}})
		case docstore.FilterLte:
			clauses = append(clauses, bson.D{{Key: key, Value: bson.D{{Key: "$lte", Value: f.Value}}}})
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	if len(clauses) == 0 {
		return bson.D{}, nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func toUpdate(mutations []docstore.Mutation) (bson.D, error) {
	set := bson.D{}
	unset := bson.D{}
	pushes := map[string]bson.A{}
	var pushOrder []string

	for _, m := range mutations {
		key, err := dotted(m.Path)
		if err != nil {
			return nil, err
		}
		value, err := docstore.Normalize(m.Value)
		if err != nil {
			return nil, err
		}
		switch m.Op {
		case docstore.OpSet:
			set = append(set, bson.E{Key: key, Value: value})
		case docstore.OpUnset:
			unset = append(unset, bson.E{Key: key, Value: ""})
		case docstore.OpPush:
			if _, seen := pushes[key]; !seen {
				pushOrder = append(pushOrder, key)
			}
			pushes[key] = append(pushes[key], value)
		default:
			return nil, fmt.Errorf("%w: unknown op %s", sentinel.ErrInvalidPath, m.Op)
		}
	}

	update := bson.D{{Key: "$inc", Value: bson.D{{Key: fieldVersion, Value: 1}}}}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	if len(pushOrder) > 0 {
		push := bson.D{}
		for _, key := range pushOrder {
			push = append(push, bson.E{Key: key, Value: bson.D{{Key: "$each", Value: pushes[key]}}})
		}
		update = append(update, bson.E{Key: "$push", Value: push})
	}
	return update, nil
}
