// Package mongodb implements the garage store on MongoDB. Multi-document operations
// run in replica-set transactions; the session travels in the context.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"fadedreams/garage/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.Store = (*MongoRepository)(nil)

const tracerName = "garage-service"

// MongoRepository implements domain.Store
type MongoRepository struct {
	client             *mongo.Client
	RepairCollection   *mongo.Collection
	CostItemCollection *mongo.Collection
	CustomerCollection *mongo.Collection
	OutboxCollection   *mongo.Collection
	CountersCollection *mongo.Collection
	nowFn              func() time.Time
}

// NewMongoRepository creates a new MongoRepository on database.
func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client:             client,
		RepairCollection:   db.Collection("repairs"),
		CostItemCollection: db.Collection("cost_items"),
		CustomerCollection: db.Collection("customers"),
		OutboxCollection:   db.Collection("outbox"),
		CountersCollection: db.Collection("counters"),
		nowFn:              time.Now,
	}
}

// Connect dials MongoDB, retrying until the server answers and the replica set
// required for transactions is initialized.
func Connect(uri string, retries int, delay time.Duration, logger *slog.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	var err error

	for i := range retries {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err == nil {
			err = client.Ping(ctx, readpref.Primary())
			if err == nil {
				// Verify replica set is initialized
				var result struct {
					Ok int `bson:"ok"`
				}
				err = client.Database("admin").RunCommand(ctx, bson.D{
					{Key: "replSetGetStatus", Value: 1},
				}).Decode(&result)
				if err == nil && result.Ok == 1 {
					cancel()
					logger.Info("Connected to MongoDB")
					return client, nil
				}
				logger.Error("Replica set not ready", "error", err)
			}
			_ = client.Disconnect(ctx)
		}
		cancel()
		logger.Error("Failed to connect to MongoDB", "attempt", i+1, "max_attempts", retries, "error", err)
		if i < retries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to connect to MongoDB after %d retries: %w", retries, err)
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoEnsureIndexes")
	defer span.End()

	if _, err := r.OutboxCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return spanError(span, "failed to create outbox index", err)
	}
	if _, err := r.RepairCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "customer_id", Value: 1}},
	}); err != nil {
		return spanError(span, "failed to create repair index", err)
	}
	return nil
}

func spanError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// WithTransaction runs fn in a snapshot transaction. Calls made while a session is
// already bound to ctx join it.
func (r *MongoRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoWithTransaction")
	defer span.End()

	session, err := r.client.StartSession()
	if err != nil {
		return spanError(span, "failed to start MongoDB session", err)
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transaction failed")
		return err
	}
	return nil
}

// nextID increments and returns the sequence named after a collection.
func (r *MongoRepository) nextID(ctx context.Context, sequence string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.CountersCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": sequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", sequence, err)
	}
	return counter.Seq, nil
}

// Ping checks the primary is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// CreateRepair inserts a new repair
func (r *MongoRepository) CreateRepair(ctx context.Context, repair *domain.Repair) (*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateRepair")
	defer span.End()

	id, err := r.nextID(ctx, "repairs")
	if err != nil {
		return nil, spanError(span, "failed to allocate repair id", err)
	}
	created := repair.Clone()
	created.ID = id
	doc, err := newRepairDoc(created)
	if err != nil {
		return nil, spanError(span, "failed to encode repair", err)
	}
	if _, err := r.RepairCollection.InsertOne(ctx, doc); err != nil {
		return nil, spanError(span, "failed to insert repair", err)
	}
	span.SetAttributes(
		attribute.Int64("repairID", id),
		attribute.Int64("customerID", created.CustomerID),
	)
	return created, nil
}

func (r *MongoRepository) decodeRepair(res *mongo.SingleResult, id int64) (*domain.Repair, error) {
	var doc repairDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.RepairNotFound(id)
		}
		return nil, fmt.Errorf("failed to find repair: %w", err)
	}
	return doc.toDomain()
}

// GetRepairByID retrieves a repair by ID
func (r *MongoRepository) GetRepairByID(ctx context.Context, id int64) (*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetRepairByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", id))

	repair, err := r.decodeRepair(r.RepairCollection.FindOne(ctx, bson.M{"_id": id}), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find repair")
		return nil, err
	}
	return repair, nil
}

// GetRepairForUpdate reads a repair through a write so that concurrent transactions
// touching the same document conflict and retry.
func (r *MongoRepository) GetRepairForUpdate(ctx context.Context, id int64) (*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetRepairForUpdate")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", id))

	res := r.RepairCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"version": int64(1)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	repair, err := r.decodeRepair(res, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to lock repair")
		return nil, err
	}
	return repair, nil
}

// GetAllRepairs retrieves all repairs ordered by id
func (r *MongoRepository) GetAllRepairs(ctx context.Context) ([]*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetAllRepairs")
	defer span.End()

	cursor, err := r.RepairCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, spanError(span, "failed to find repairs", err)
	}
	defer cursor.Close(ctx)

	repairs := []*domain.Repair{}
	for cursor.Next(ctx) {
		var doc repairDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, spanError(span, "failed to decode repair", err)
		}
		repair, err := doc.toDomain()
		if err != nil {
			return nil, spanError(span, "failed to decode repair", err)
		}
		repairs = append(repairs, repair)
	}
	if err := cursor.Err(); err != nil {
		return nil, spanError(span, "cursor error", err)
	}
	span.SetAttributes(attribute.Int("repairCount", len(repairs)))
	return repairs, nil
}

// UpdateRepair replaces a stored repair
func (r *MongoRepository) UpdateRepair(ctx context.Context, repair *domain.Repair) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateRepair")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("repairID", repair.ID),
		attribute.String("status", string(repair.Status)),
	)

	doc, err := newRepairDoc(repair)
	if err != nil {
		return spanError(span, "failed to encode repair", err)
	}
	set := bson.M{
		"customer_id":         doc.CustomerID,
		"examination_date":    doc.ExaminationDate,
		"found_problems":      doc.FoundProblems,
		"repair_date":         doc.RepairDate,
		"customer_agreed":     doc.CustomerAgreed,
		"parts_recorded":      doc.PartsRecorded,
		"parts_used":          doc.PartsUsed,
		"other_actions_price": doc.OtherActionsPrice,
		"status":              doc.Status,
		"called":              doc.Called,
		"paid":                doc.Paid,
	}
	res, err := r.RepairCollection.UpdateOne(ctx, bson.M{"_id": repair.ID}, bson.M{"$set": set})
	if err != nil {
		return spanError(span, "failed to update repair", err)
	}
	if res.MatchedCount == 0 {
		return domain.RepairNotFound(repair.ID)
	}
	return nil
}

// DeleteRepair removes a repair
func (r *MongoRepository) DeleteRepair(ctx context.Context, id int64) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoDeleteRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", id))

	res, err := r.RepairCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return spanError(span, "failed to delete repair", err)
	}
	if res.DeletedCount == 0 {
		return domain.RepairNotFound(id)
	}
	return nil
}

// FindCustomerIDsToCall returns the distinct customers of CANCELED or COMPLETED repairs
func (r *MongoRepository) FindCustomerIDsToCall(ctx context.Context) ([]int64, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoFindCustomerIDsToCall")
	defer span.End()

	values, err := r.RepairCollection.Distinct(ctx, "customer_id", bson.M{
		"status": bson.M{"$in": bson.A{string(domain.StatusCanceled), string(domain.StatusCompleted)}},
	})
	if err != nil {
		return nil, spanError(span, "failed to find customers to call", err)
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case int64:
			ids = append(ids, id)
		case int32:
			ids = append(ids, int64(id))
		default:
			return nil, spanError(span, "failed to decode customer id", fmt.Errorf("unexpected type %T", v))
		}
	}
	slices.Sort(ids)
	span.SetAttributes(attribute.Int("customerCount", len(ids)))
	return ids, nil
}

// CreateCostItem inserts a new cost item
func (r *MongoRepository) CreateCostItem(ctx context.Context, item *domain.CostItem) (*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateCostItem")
	defer span.End()

	id, err := r.nextID(ctx, "cost_items")
	if err != nil {
		return nil, spanError(span, "failed to allocate cost item id", err)
	}
	created := item.Clone()
	created.ID = id
	doc, err := newCostItemDoc(created)
	if err != nil {
		return nil, spanError(span, "failed to encode cost item", err)
	}
	if _, err := r.CostItemCollection.InsertOne(ctx, doc); err != nil {
		return nil, spanError(span, "failed to insert cost item", err)
	}
	span.SetAttributes(attribute.Int64("costItemID", id), attribute.String("category", doc.Category))
	return created, nil
}

func decodeCostItem(res *mongo.SingleResult, id int64) (*domain.CostItem, error) {
	var doc costItemDoc
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.CostItemNotFound(id)
		}
		return nil, fmt.Errorf("failed to find cost item: %w", err)
	}
	return doc.toDomain()
}

// GetCostItemByID retrieves a cost item by ID
func (r *MongoRepository) GetCostItemByID(ctx context.Context, id int64) (*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetCostItemByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	item, err := decodeCostItem(r.CostItemCollection.FindOne(ctx, bson.M{"_id": id}), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find cost item")
		return nil, err
	}
	return item, nil
}

// GetCostItemForUpdate reads a cost item through a write so that concurrent
// transactions on the same item conflict and retry.
func (r *MongoRepository) GetCostItemForUpdate(ctx context.Context, id int64) (*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetCostItemForUpdate")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	res := r.CostItemCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"version": int64(1)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	item, err := decodeCostItem(res, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to lock cost item")
		return nil, err
	}
	return item, nil
}

func (r *MongoRepository) findCostItems(ctx context.Context, span trace.Span, filter bson.M) ([]*domain.CostItem, error) {
	cursor, err := r.CostItemCollection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, spanError(span, "failed to find cost items", err)
	}
	defer cursor.Close(ctx)

	items := []*domain.CostItem{}
	for cursor.Next(ctx) {
		var doc costItemDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, spanError(span, "failed to decode cost item", err)
		}
		item, err := doc.toDomain()
		if err != nil {
			return nil, spanError(span, "failed to decode cost item", err)
		}
		items = append(items, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, spanError(span, "cursor error", err)
	}
	return items, nil
}

// GetAllCostItems retrieves the catalog ordered by id
func (r *MongoRepository) GetAllCostItems(ctx context.Context) ([]*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetAllCostItems")
	defer span.End()

	items, err := r.findCostItems(ctx, span, bson.M{})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("costItemCount", len(items)))
	return items, nil
}

// FindCostItemsByIDs returns items in input order, repeating duplicates and skipping missing ids
func (r *MongoRepository) FindCostItemsByIDs(ctx context.Context, ids []int64) ([]*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoFindCostItemsByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int64Slice("costItemIDs", ids))

	if len(ids) == 0 {
		return []*domain.CostItem{}, nil
	}
	found, err := r.findCostItems(ctx, span, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.CostItem, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}
	items := make([]*domain.CostItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item.Clone())
		}
	}
	return items, nil
}

// UpdateCostItem replaces the fields of a cost item
func (r *MongoRepository) UpdateCostItem(ctx context.Context, item *domain.CostItem) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", item.ID))

	doc, err := newCostItemDoc(item)
	if err != nil {
		return spanError(span, "failed to encode cost item", err)
	}
	res, err := r.CostItemCollection.UpdateOne(ctx, bson.M{"_id": item.ID}, bson.M{"$set": bson.M{
		"name":      doc.Name,
		"unit_cost": doc.UnitCost,
		"category":  doc.Category,
		"stock":     doc.Stock,
	}})
	if err != nil {
		return spanError(span, "failed to update cost item", err)
	}
	if res.MatchedCount == 0 {
		return domain.CostItemNotFound(item.ID)
	}
	return nil
}

// DecrementStock takes units from a PART with a conditional $inc. ACTION items are
// left untouched.
func (r *MongoRepository) DecrementStock(ctx context.Context, id int64, units int, allowNegative bool) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoDecrementStock")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("costItemID", id),
		attribute.Int("units", units),
		attribute.Bool("allowNegative", allowNegative),
	)

	filter := bson.M{"_id": id, "category": string(domain.CategoryPart)}
	if !allowNegative {
		filter["stock"] = bson.M{"$gte": units}
	}
	res, err := r.CostItemCollection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"stock": -units}})
	if err != nil {
		return spanError(span, "failed to decrement stock", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	item, err := decodeCostItem(r.CostItemCollection.FindOne(ctx, bson.M{"_id": id}), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decrement stock")
		return err
	}
	if !item.IsPart() {
		return nil
	}
	err = &domain.OutOfStockError{ItemID: id}
	span.RecordError(err)
	span.SetStatus(codes.Error, "Out of stock")
	return err
}

// DeleteCostItem removes a cost item
func (r *MongoRepository) DeleteCostItem(ctx context.Context, id int64) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoDeleteCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	res, err := r.CostItemCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return spanError(span, "failed to delete cost item", err)
	}
	if res.DeletedCount == 0 {
		return domain.CostItemNotFound(id)
	}
	return nil
}

// CreateCustomer inserts a new customer
func (r *MongoRepository) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateCustomer")
	defer span.End()

	id, err := r.nextID(ctx, "customers")
	if err != nil {
		return nil, spanError(span, "failed to allocate customer id", err)
	}
	created := *customer
	created.ID = id
	if _, err := r.CustomerCollection.InsertOne(ctx, newCustomerDoc(&created)); err != nil {
		return nil, spanError(span, "failed to insert customer", err)
	}
	span.SetAttributes(attribute.Int64("customerID", id))
	return &created, nil
}

// GetCustomerByID retrieves a customer by ID
func (r *MongoRepository) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetCustomerByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("customerID", id))

	var doc customerDoc
	if err := r.CustomerCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.CustomerNotFound(id)
		}
		return nil, spanError(span, "failed to find customer", err)
	}
	return doc.toDomain(), nil
}

// Exists reports whether a customer id is known
func (r *MongoRepository) Exists(ctx context.Context, id int64) (bool, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoCustomerExists")
	defer span.End()
	span.SetAttributes(attribute.Int64("customerID", id))

	n, err := r.CustomerCollection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, spanError(span, "failed to count customers", err)
	}
	return n > 0, nil
}

// FindByIDs resolves customer ids in input order, skipping unknown ones
func (r *MongoRepository) FindByIDs(ctx context.Context, ids []int64) ([]*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoFindCustomersByIDs")
	defer span.End()

	customers := []*domain.Customer{}
	if len(ids) == 0 {
		return customers, nil
	}
	cursor, err := r.CustomerCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, spanError(span, "failed to find customers", err)
	}
	defer cursor.Close(ctx)

	byID := make(map[int64]*domain.Customer, len(ids))
	for cursor.Next(ctx) {
		var doc customerDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, spanError(span, "failed to decode customer", err)
		}
		byID[doc.ID] = doc.toDomain()
	}
	if err := cursor.Err(); err != nil {
		return nil, spanError(span, "cursor error", err)
	}
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			customers = append(customers, c)
		}
	}
	span.SetAttributes(attribute.Int("customerCount", len(customers)))
	return customers, nil
}

// SaveOutboxEvent saves an event to the outbox collection
func (r *MongoRepository) SaveOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoSaveOutboxEvent")
	defer span.End()

	if _, err := r.OutboxCollection.InsertOne(ctx, event); err != nil {
		return spanError(span, "failed to save outbox event", err)
	}
	span.SetAttributes(
		attribute.String("eventID", event.ID),
		attribute.String("eventType", event.EventType),
	)
	return nil
}

// GetUnprocessedOutboxEvents retrieves up to limit unprocessed outbox events, oldest first
func (r *MongoRepository) GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoGetUnprocessedOutboxEvents")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.OutboxCollection.Find(ctx, bson.M{"processed": false}, opts)
	if err != nil {
		return nil, spanError(span, "failed to find unprocessed outbox events", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, spanError(span, "failed to decode outbox events", err)
	}
	span.SetAttributes(attribute.Int("eventCount", len(events)))
	return events, nil
}

// MarkOutboxEventProcessed marks an outbox event as processed
func (r *MongoRepository) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "MongoMarkOutboxEventProcessed")
	defer span.End()
	span.SetAttributes(attribute.String("eventID", eventID))

	_, err := r.OutboxCollection.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
		"$set": bson.M{
			"processed":    true,
			"processed_at": r.nowFn().UTC(),
		},
	})
	if err != nil {
		return spanError(span, "failed to mark outbox event as processed", err)
	}
	return nil
}
