// Package postgres provides a Postgres-backed garage store. The schema is applied on
// startup and transactions lock rows with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fadedreams/garage/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Store = (*Store)(nil)

const (
	driverName = "pgx"
	tracerName = "garage-service"
)

//go:embed schema.sql
var schema string

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists garage state in Postgres.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open connects to dsn, checks the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

// statements splits a DDL script on semicolons, dropping empty fragments.
func statements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func spanError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return fmt.Errorf("%s: %w", msg, err)
}

// WithTransaction runs fn in a READ COMMITTED transaction. Calls made with a context
// that already carries a transaction join it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresWithTransaction")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return spanError(span, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transaction rolled back")
		return err
	}
	if err := tx.Commit(); err != nil {
		return spanError(span, "commit transaction", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *Store) Close(context.Context) error { return s.db.Close() }

const repairColumns = `id, customer_id, examination_date, found_problems, repair_date, customer_agreed,
	parts_used, other_actions_price, status, called, paid`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepair(row rowScanner) (*domain.Repair, error) {
	var (
		r          domain.Repair
		repairDate sql.NullTime
		agreed     sql.NullBool
		parts      []byte
		status     string
	)
	if err := row.Scan(&r.ID, &r.CustomerID, &r.ExaminationDate, &r.FoundProblems, &repairDate, &agreed,
		&parts, &r.OtherActionsPrice, &status, &r.Called, &r.Paid); err != nil {
		return nil, err
	}
	r.ExaminationDate = r.ExaminationDate.UTC()
	r.Status = domain.RepairStatus(status)
	if repairDate.Valid {
		d := repairDate.Time.UTC()
		r.RepairDate = &d
	}
	if agreed.Valid {
		b := agreed.Bool
		r.CustomerAgreed = &b
	}
	if parts != nil {
		r.PartsUsed = []int64{}
		if err := json.Unmarshal(parts, &r.PartsUsed); err != nil {
			return nil, fmt.Errorf("decode parts_used: %w", err)
		}
		if r.PartsUsed == nil {
			r.PartsUsed = []int64{}
		}
	}
	return &r, nil
}

func partsValue(parts []int64) (any, error) {
	if parts == nil {
		return nil, nil
	}
	b, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// CreateRepair inserts a repair and returns it with its generated id.
func (s *Store) CreateRepair(ctx context.Context, repair *domain.Repair) (*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresCreateRepair")
	defer span.End()

	parts, err := partsValue(repair.PartsUsed)
	if err != nil {
		return nil, spanError(span, "encode parts_used", err)
	}
	created := repair.Clone()
	err = s.conn(ctx).QueryRowContext(ctx, `INSERT INTO repairs
		(customer_id, examination_date, found_problems, repair_date, customer_agreed, parts_used,
		 other_actions_price, status, called, paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		repair.CustomerID, repair.ExaminationDate, repair.FoundProblems, repair.RepairDate, repair.CustomerAgreed,
		parts, repair.OtherActionsPrice, string(repair.Status), repair.Called, repair.Paid,
	).Scan(&created.ID)
	if err != nil {
		return nil, spanError(span, "insert repair", err)
	}
	span.SetAttributes(attribute.Int64("repairID", created.ID))
	return created, nil
}

func (s *Store) getRepair(ctx context.Context, spanName string, id int64, lock bool) (*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", id))

	query := `SELECT ` + repairColumns + ` FROM repairs WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	repair, err := scanRepair(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.RepairNotFound(id)
	}
	if err != nil {
		return nil, spanError(span, "select repair", err)
	}
	return repair, nil
}

// GetRepairByID loads a repair.
func (s *Store) GetRepairByID(ctx context.Context, id int64) (*domain.Repair, error) {
	return s.getRepair(ctx, "PostgresGetRepairByID", id, false)
}

// GetRepairForUpdate loads a repair and row-locks it until the transaction ends.
func (s *Store) GetRepairForUpdate(ctx context.Context, id int64) (*domain.Repair, error) {
	return s.getRepair(ctx, "PostgresGetRepairForUpdate", id, true)
}

// GetAllRepairs returns every repair ordered by id.
func (s *Store) GetAllRepairs(ctx context.Context) ([]*domain.Repair, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresGetAllRepairs")
	defer span.End()

	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT `+repairColumns+` FROM repairs ORDER BY id`)
	if err != nil {
		return nil, spanError(span, "select repairs", err)
	}
	defer func() { _ = rows.Close() }()

	repairs := []*domain.Repair{}
	for rows.Next() {
		r, err := scanRepair(rows)
		if err != nil {
			return nil, spanError(span, "scan repair", err)
		}
		repairs = append(repairs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, "iterate repairs", err)
	}
	span.SetAttributes(attribute.Int("repairCount", len(repairs)))
	return repairs, nil
}

// UpdateRepair rewrites every mutable column of a repair.
func (s *Store) UpdateRepair(ctx context.Context, repair *domain.Repair) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresUpdateRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", repair.ID), attribute.String("status", string(repair.Status)))

	parts, err := partsValue(repair.PartsUsed)
	if err != nil {
		return spanError(span, "encode parts_used", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE repairs SET
		customer_id = $2, examination_date = $3, found_problems = $4, repair_date = $5,
		customer_agreed = $6, parts_used = $7, other_actions_price = $8, status = $9,
		called = $10, paid = $11
		WHERE id = $1`,
		repair.ID, repair.CustomerID, repair.ExaminationDate, repair.FoundProblems, repair.RepairDate,
		repair.CustomerAgreed, parts, repair.OtherActionsPrice, string(repair.Status), repair.Called, repair.Paid,
	)
	if err != nil {
		return spanError(span, "update repair", err)
	}
	return requireRow(res, domain.RepairNotFound(repair.ID))
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// DeleteRepair removes a repair.
func (s *Store) DeleteRepair(ctx context.Context, id int64) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresDeleteRepair")
	defer span.End()
	span.SetAttributes(attribute.Int64("repairID", id))

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM repairs WHERE id = $1`, id)
	if err != nil {
		return spanError(span, "delete repair", err)
	}
	return requireRow(res, domain.RepairNotFound(id))
}

// FindCustomerIDsToCall returns the distinct customers of CANCELED or COMPLETED repairs.
func (s *Store) FindCustomerIDsToCall(ctx context.Context) ([]int64, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresFindCustomerIDsToCall")
	defer span.End()

	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT DISTINCT customer_id FROM repairs
		WHERE status IN ($1, $2) ORDER BY customer_id`,
		string(domain.StatusCanceled), string(domain.StatusCompleted))
	if err != nil {
		return nil, spanError(span, "select customers to call", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, spanError(span, "scan customer id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, "iterate customer ids", err)
	}
	return ids, nil
}

const costItemColumns = `id, name, unit_cost, category, stock`

func scanCostItem(row rowScanner) (*domain.CostItem, error) {
	var (
		c        domain.CostItem
		category string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.UnitCost, &category, &c.Stock); err != nil {
		return nil, err
	}
	c.Category = domain.Category(category)
	return &c, nil
}

// CreateCostItem inserts a catalog entry.
func (s *Store) CreateCostItem(ctx context.Context, item *domain.CostItem) (*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresCreateCostItem")
	defer span.End()

	created := item.Clone()
	err := s.conn(ctx).QueryRowContext(ctx,
		`INSERT INTO cost_items (name, unit_cost, category, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.Name, item.UnitCost, string(item.Category), item.Stock,
	).Scan(&created.ID)
	if err != nil {
		return nil, spanError(span, "insert cost item", err)
	}
	span.SetAttributes(attribute.Int64("costItemID", created.ID))
	return created, nil
}

func (s *Store) getCostItem(ctx context.Context, spanName string, id int64, lock bool) (*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	query := `SELECT ` + costItemColumns + ` FROM cost_items WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	item, err := scanCostItem(s.conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.CostItemNotFound(id)
	}
	if err != nil {
		return nil, spanError(span, "select cost item", err)
	}
	return item, nil
}

// GetCostItemByID loads a catalog entry.
func (s *Store) GetCostItemByID(ctx context.Context, id int64) (*domain.CostItem, error) {
	return s.getCostItem(ctx, "PostgresGetCostItemByID", id, false)
}

// GetCostItemForUpdate loads a catalog entry and row-locks it until the transaction ends.
func (s *Store) GetCostItemForUpdate(ctx context.Context, id int64) (*domain.CostItem, error) {
	return s.getCostItem(ctx, "PostgresGetCostItemForUpdate", id, true)
}

func (s *Store) queryCostItems(ctx context.Context, span trace.Span, query string, args ...any) ([]*domain.CostItem, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, spanError(span, "select cost items", err)
	}
	defer func() { _ = rows.Close() }()

	items := []*domain.CostItem{}
	for rows.Next() {
		item, err := scanCostItem(rows)
		if err != nil {
			return nil, spanError(span, "scan cost item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, "iterate cost items", err)
	}
	return items, nil
}

// GetAllCostItems returns the catalog ordered by id.
func (s *Store) GetAllCostItems(ctx context.Context) ([]*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresGetAllCostItems")
	defer span.End()

	return s.queryCostItems(ctx, span, `SELECT `+costItemColumns+` FROM cost_items ORDER BY id`)
}

// FindCostItemsByIDs returns items in input order, repeating duplicates and skipping missing ids.
func (s *Store) FindCostItemsByIDs(ctx context.Context, ids []int64) ([]*domain.CostItem, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresFindCostItemsByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int64Slice("costItemIDs", ids))

	if len(ids) == 0 {
		return []*domain.CostItem{}, nil
	}
	found, err := s.queryCostItems(ctx, span, `SELECT `+costItemColumns+` FROM cost_items WHERE id = ANY($1)`, ids)
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

// UpdateCostItem rewrites a catalog entry.
func (s *Store) UpdateCostItem(ctx context.Context, item *domain.CostItem) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresUpdateCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", item.ID))

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE cost_items SET name = $2, unit_cost = $3, category = $4, stock = $5 WHERE id = $1`,
		item.ID, item.Name, item.UnitCost, string(item.Category), item.Stock,
	)
	if err != nil {
		return spanError(span, "update cost item", err)
	}
	return requireRow(res, domain.CostItemNotFound(item.ID))
}

// DecrementStock takes units from a PART. The guarded UPDATE refuses to go below
// zero unless allowNegative is set. ACTION items are left untouched.
func (s *Store) DecrementStock(ctx context.Context, id int64, units int, allowNegative bool) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresDecrementStock")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("costItemID", id),
		attribute.Int("units", units),
		attribute.Bool("allowNegative", allowNegative),
	)

	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE cost_items SET stock = stock - $2
		WHERE id = $1 AND category = $3 AND ($4 OR stock >= $2)`,
		id, units, string(domain.CategoryPart), allowNegative)
	if err != nil {
		return spanError(span, "decrement stock", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return spanError(span, "rows affected", err)
	} else if n == 1 {
		return nil
	}

	item, err := s.getCostItem(ctx, "PostgresGetCostItemByID", id, false)
	if err != nil {
		span.RecordError(err)
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

// DeleteCostItem removes a catalog entry.
func (s *Store) DeleteCostItem(ctx context.Context, id int64) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresDeleteCostItem")
	defer span.End()
	span.SetAttributes(attribute.Int64("costItemID", id))

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM cost_items WHERE id = $1`, id)
	if err != nil {
		return spanError(span, "delete cost item", err)
	}
	return requireRow(res, domain.CostItemNotFound(id))
}

// CreateCustomer inserts a customer.
func (s *Store) CreateCustomer(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresCreateCustomer")
	defer span.End()

	created := *customer
	err := s.conn(ctx).QueryRowContext(ctx,
		`INSERT INTO customers (name, telephone_number, license_plate) VALUES ($1, $2, $3) RETURNING id`,
		customer.Name, customer.TelephoneNumber, customer.LicensePlate,
	).Scan(&created.ID)
	if err != nil {
		return nil, spanError(span, "insert customer", err)
	}
	span.SetAttributes(attribute.Int64("customerID", created.ID))
	return &created, nil
}

// GetCustomerByID loads a customer.
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresGetCustomerByID")
	defer span.End()
	span.SetAttributes(attribute.Int64("customerID", id))

	var c domain.Customer
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, telephone_number, license_plate FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.TelephoneNumber, &c.LicensePlate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.CustomerNotFound(id)
	}
	if err != nil {
		return nil, spanError(span, "select customer", err)
	}
	return &c, nil
}

// Exists reports whether a customer id is known.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresCustomerExists")
	defer span.End()

	var ok bool
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, spanError(span, "select customer", err)
	}
	return ok, nil
}

// FindByIDs resolves customer ids in input order, skipping unknown ones.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]*domain.Customer, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresFindCustomersByIDs")
	defer span.End()

	customers := []*domain.Customer{}
	if len(ids) == 0 {
		return customers, nil
	}
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, name, telephone_number, license_plate FROM customers WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, spanError(span, "select customers", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[int64]*domain.Customer, len(ids))
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.TelephoneNumber, &c.LicensePlate); err != nil {
			return nil, spanError(span, "scan customer", err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, "iterate customers", err)
	}
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			customers = append(customers, c)
		}
	}
	return customers, nil
}

// SaveOutboxEvent appends an event to the outbox table.
func (s *Store) SaveOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresSaveOutboxEvent")
	defer span.End()
	span.SetAttributes(attribute.String("eventID", event.ID), attribute.String("eventType", event.EventType))

	_, err := s.conn(ctx).ExecContext(ctx, `INSERT INTO outbox
		(id, event_type, repair_id, payload, created_at, processed, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.EventType, event.RepairID, event.Payload, event.CreatedAt, event.Processed, event.ProcessedAt,
	)
	if err != nil {
		return spanError(span, "insert outbox event", err)
	}
	return nil
}

// GetUnprocessedOutboxEvents returns up to limit pending events, oldest first. A
// limit of zero returns all of them.
func (s *Store) GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresGetUnprocessedOutboxEvents")
	defer span.End()

	query := `SELECT id, event_type, repair_id, payload, created_at, processed, processed_at
		FROM outbox WHERE NOT processed ORDER BY created_at, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, spanError(span, "select outbox events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			e           domain.OutboxEvent
			processedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.RepairID, &e.Payload, &e.CreatedAt, &e.Processed, &processedAt); err != nil {
			return nil, spanError(span, "scan outbox event", err)
		}
		if processedAt.Valid {
			t := processedAt.Time
			e.ProcessedAt = &t
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, "iterate outbox events", err)
	}
	span.SetAttributes(attribute.Int("eventCount", len(events)))
	return events, nil
}

// MarkOutboxEventProcessed flags an event as published.
func (s *Store) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "PostgresMarkOutboxEventProcessed")
	defer span.End()
	span.SetAttributes(attribute.String("eventID", eventID))

	if _, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE outbox SET processed = TRUE, processed_at = $2 WHERE id = $1`, eventID, s.nowFn().UTC(),
	); err != nil {
		return spanError(span, "mark outbox event processed", err)
	}
	return nil
}
