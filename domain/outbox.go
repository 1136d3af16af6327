package domain

import "time"

// Repair lifecycle event types written to the outbox.
const (
	EventRepairCreated   = "RepairCreated"
	EventFoundProblems   = "RepairExamined"
	EventRepairCanceled  = "RepairCanceled"
	EventRepairScheduled = "RepairScheduled"
	EventPartsAssigned   = "RepairPartsAssigned"
	EventRepairCompleted = "RepairCompleted"
	EventCustomerCalled  = "RepairCustomerCalled"
	EventRepairPaid      = "RepairPaid"
	EventRepairDeleted   = "RepairDeleted"
)

// OutboxEvent is a serialized lifecycle event awaiting publication.
type OutboxEvent struct {
	ID          string     `bson:"_id" json:"id"`
	EventType   string     `bson:"event_type" json:"event_type"`
	RepairID    int64      `bson:"repair_id" json:"repair_id"`
	Payload     []byte     `bson:"payload" json:"payload"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	Processed   bool       `bson:"processed" json:"processed"`
	ProcessedAt *time.Time `bson:"processed_at" json:"processed_at,omitempty"`
}

// EventEncoder serializes a repair snapshot for the outbox.
type EventEncoder interface {
	EncodeRepairEvent(eventType string, repair *Repair, at time.Time) ([]byte, error)
}
