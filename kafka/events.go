package kafka

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"fadedreams/garage/domain"

	"github.com/hamba/avro/v2"
)

//go:embed repair_event.avsc
var repairEventSchema string

// SchemaText returns the Avro schema of RepairEvent.
func SchemaText() string { return repairEventSchema }

// RepairEvent mirrors the Avro schema
type RepairEvent struct {
	EventType         string    `avro:"event_type"`
	RepairID          int64     `avro:"repair_id"`
	CustomerID        int64     `avro:"customer_id"`
	Status            string    `avro:"status"`
	ExaminationDate   string    `avro:"examination_date"`
	FoundProblems     string    `avro:"found_problems"`
	RepairDate        *string   `avro:"repair_date"`
	CustomerAgreed    *bool     `avro:"customer_agreed"`
	PartsUsed         []int64   `avro:"parts_used"`
	OtherActionsPrice string    `avro:"other_actions_price"`
	Called            bool      `avro:"called"`
	Paid              bool      `avro:"paid"`
	OccurredAt        time.Time `avro:"occurred_at"`
}

// NewRepairEvent snapshots a repair.
func NewRepairEvent(eventType string, r *domain.Repair, at time.Time) RepairEvent {
	ev := RepairEvent{
		EventType:         eventType,
		RepairID:          r.ID,
		CustomerID:        r.CustomerID,
		Status:            string(r.Status),
		ExaminationDate:   r.ExaminationDate.Format(time.DateOnly),
		FoundProblems:     r.FoundProblems,
		PartsUsed:         r.PartsUsed,
		OtherActionsPrice: r.OtherActionsPrice.String(),
		Called:            r.Called,
		Paid:              r.Paid,
		OccurredAt:        at.UTC().Truncate(time.Millisecond),
	}
	if r.RepairDate != nil {
		d := r.RepairDate.Format(time.DateOnly)
		ev.RepairDate = &d
	}
	if r.CustomerAgreed != nil {
		agreed := *r.CustomerAgreed
		ev.CustomerAgreed = &agreed
	}
	return ev
}

const (
	magicByte  = 0
	headerSize = 5
)

var errShortMessage = errors.New("message shorter than the schema registry header")

// Codec writes RepairEvents in the schema registry wire format: a zero magic byte,
// the big-endian schema id and the Avro body.
type Codec struct {
	schema   avro.Schema
	schemaID int
}

// NewCodec parses the embedded schema. schemaID is the id the registry assigned to it.
func NewCodec(schemaID int) (*Codec, error) {
	schema, err := avro.Parse(repairEventSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &Codec{schema: schema, schemaID: schemaID}, nil
}

// SchemaID returns the registry id written into every message.
func (c *Codec) SchemaID() int { return c.schemaID }

// EncodeRepairEvent implements domain.EventEncoder.
func (c *Codec) EncodeRepairEvent(eventType string, repair *domain.Repair, at time.Time) ([]byte, error) {
	body, err := avro.Marshal(c.schema, NewRepairEvent(eventType, repair, at))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	msg := make([]byte, headerSize, headerSize+len(body))
	msg[0] = magicByte
	binary.BigEndian.PutUint32(msg[1:headerSize], uint32(c.schemaID))
	return append(msg, body...), nil
}

// Decode reads a message produced by EncodeRepairEvent and returns the event with
// the schema id found in its header.
func (c *Codec) Decode(msg []byte) (*RepairEvent, int, error) {
	if len(msg) < headerSize {
		return nil, 0, errShortMessage
	}
	if msg[0] != magicByte {
		return nil, 0, fmt.Errorf("unexpected magic byte %d", msg[0])
	}
	schemaID := int(binary.BigEndian.Uint32(msg[1:headerSize]))
	var ev RepairEvent
	if err := avro.Unmarshal(c.schema, msg[headerSize:], &ev); err != nil {
		return nil, schemaID, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, schemaID, nil
}
