package record

import (
	"context"
	"fmt"
	"time"

	"aspire-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collections holding synced entities, one per entity kind.
const (
	CollCompanies   = "aspire_companies"
	CollProperties  = "service_properties"
	CollContacts    = "aspire_contacts"
	CollContracts   = "aspire_contracts"
	CollWorkTickets = "work_tickets"
)

// External-id fields, the sole upsert match key per entity kind.
const (
	FieldCompanyID     = "aspire_company_id"
	FieldPropertyID    = "aspire_property_id"
	FieldContactID     = "aspire_contact_id"
	FieldOpportunityID = "aspire_opportunity_id"
	FieldWorkTicketID  = "aspire_work_ticket_id"
)

// Unlinked is a document that carries an external reference but no
// resolved local link yet.
type Unlinked struct {
	ID  primitive.ObjectID
	Ref int64
}

// Store is the document store used by entity syncs. Insert, Update and
// SetField queue writes; Flush persists the queue as one bulk write per
// collection and is the batch checkpoint of a sync run.
type Store interface {
	EnsureIndexes(ctx context.Context) error
	Lookup(ctx context.Context, collection, externalField string) (map[int64]primitive.ObjectID, error)
	LookupField(ctx context.Context, collection, externalField, valueField string) (map[int64]primitive.ObjectID, error)
	FindByExternal(ctx context.Context, collection, externalField string, externalID int64) (primitive.ObjectID, bool, error)
	Insert(collection string, doc bson.M) primitive.ObjectID
	Update(collection string, id primitive.ObjectID, fields bson.M)
	SetField(collection string, id primitive.ObjectID, field string, value any)
	Flush(ctx context.Context) error
	FindUnlinked(ctx context.Context, collection, refField, linkField string) ([]Unlinked, error)
}

type MongoStore struct {
	db      *mongo.Database
	pending map[string][]mongo.WriteModel
}

func NewStore(db *database.MongodbDB) Store {
	return &MongoStore{
		db:      db.DB,
		pending: make(map[string][]mongo.WriteModel),
	}
}

var uniqueIndexes = []struct {
	collection string
	field      string
}{
	{CollCompanies, FieldCompanyID},
	{CollProperties, FieldPropertyID},
	{CollContacts, FieldContactID},
	{CollContracts, FieldOpportunityID},
	{CollWorkTickets, FieldWorkTicketID},
}

// EnsureIndexes creates the unique external-id index per entity collection.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, idx := range uniqueIndexes {
		_, err := s.db.Collection(idx.collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.field, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("failed to ensure index on %s.%s: %w", idx.collection, idx.field, err)
		}
	}
	return nil
}

// Lookup builds an external id -> document id map for a collection. Built
// fresh per sync run so records created earlier in the run are visible.
func (s *MongoStore) Lookup(ctx context.Context, collection, externalField string) (map[int64]primitive.ObjectID, error) {
	projection := options.Find().SetProjection(bson.M{"_id": 1, externalField: 1})
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{externalField: bson.M{"$gt": 0}}, projection)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	lookup := make(map[int64]primitive.ObjectID)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		id, ok := doc["_id"].(primitive.ObjectID)
		if !ok {
			continue
		}
		if ext := toInt64(doc[externalField]); ext != 0 {
			lookup[ext] = id
		}
	}
	return lookup, cursor.Err()
}

// LookupField builds an external id -> referenced document id map, reading
// the reference from valueField instead of _id. Documents where valueField
// is unset are skipped.
func (s *MongoStore) LookupField(ctx context.Context, collection, externalField, valueField string) (map[int64]primitive.ObjectID, error) {
	filter := bson.M{
		externalField: bson.M{"$gt": 0},
		valueField:    bson.M{"$ne": nil},
	}
	projection := options.Find().SetProjection(bson.M{externalField: 1, valueField: 1})
	cursor, err := s.db.Collection(collection).Find(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	lookup := make(map[int64]primitive.ObjectID)
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ref, ok := doc[valueField].(primitive.ObjectID)
		if !ok {
			continue
		}
		if ext := toInt64(doc[externalField]); ext != 0 {
			lookup[ext] = ref
		}
	}
	return lookup, cursor.Err()
}

// FindByExternal returns the document id matching an external id.
func (s *MongoStore) FindByExternal(ctx context.Context, collection, externalField string, externalID int64) (primitive.ObjectID, bool, error) {
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := s.db.Collection(collection).FindOne(ctx, bson.M{externalField: externalID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return primitive.NilObjectID, false, nil
	}
	if err != nil {
		return primitive.NilObjectID, false, err
	}
	return doc.ID, true, nil
}

// Insert queues a new document and returns its assigned id, so callers can
// address the document before it is flushed.
func (s *MongoStore) Insert(collection string, doc bson.M) primitive.ObjectID {
	id := primitive.NewObjectID()
	doc["_id"] = id
	doc["created_at"] = time.Now().UTC()
	s.pending[collection] = append(s.pending[collection], mongo.NewInsertOneModel().SetDocument(doc))
	return id
}

// Update queues a merge into an existing document. Callers pass only the
// allow-listed fields; _id and created_at are never touched.
func (s *MongoStore) Update(collection string, id primitive.ObjectID, fields bson.M) {
	fields["updated_at"] = time.Now().UTC()
	s.pending[collection] = append(s.pending[collection],
		mongo.NewUpdateOneModel().SetFilter(bson.M{"_id": id}).SetUpdate(bson.M{"$set": fields}))
}

// SetField queues a single-field update, used by the link repair passes.
func (s *MongoStore) SetField(collection string, id primitive.ObjectID, field string, value any) {
	s.pending[collection] = append(s.pending[collection],
		mongo.NewUpdateOneModel().SetFilter(bson.M{"_id": id}).SetUpdate(bson.M{"$set": bson.M{field: value}}))
}

// Flush persists queued writes, one ordered BulkWrite per collection.
func (s *MongoStore) Flush(ctx context.Context) error {
	for collection, writes := range s.pending {
		if len(writes) == 0 {
			continue
		}
		if _, err := s.db.Collection(collection).BulkWrite(ctx, writes); err != nil {
			s.pending = make(map[string][]mongo.WriteModel)
			return fmt.Errorf("bulk write to %s failed: %w", collection, err)
		}
		delete(s.pending, collection)
	}
	return nil
}

// FindUnlinked lists documents whose external ref field is set but whose
// local link field is not.
func (s *MongoStore) FindUnlinked(ctx context.Context, collection, refField, linkField string) ([]Unlinked, error) {
	filter := bson.M{
		refField:  bson.M{"$nin": bson.A{nil, 0}},
		linkField: nil,
	}
	projection := options.Find().SetProjection(bson.M{"_id": 1, refField: 1})
	cursor, err := s.db.Collection(collection).Find(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Unlinked
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		id, ok := doc["_id"].(primitive.ObjectID)
		if !ok {
			continue
		}
		out = append(out, Unlinked{ID: id, Ref: toInt64(doc[refField])})
	}
	return out, cursor.Err()
}

// toInt64 coerces the numeric shapes bson decoding produces.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
