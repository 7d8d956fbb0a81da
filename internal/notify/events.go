// Package notify defines the notification gateway seam. The core only
// produces typed events; delivery transports (socket, push, mail) live
// behind the Gateway interface.
package notify

// Audience selects who receives an event.
type Audience string

const (
	AudienceAdmins   Audience = "admins"
	AudienceWorker   Audience = "worker"
	AudienceCustomer Audience = "customer"
	AudienceWorkers  Audience = "workers"
)

// EventType enumerates the events the core emits.
type EventType string

const (
	EventNewOrder           EventType = "NEW_ORDER"
	EventOrderStatusUpdated EventType = "ORDER_STATUS_UPDATED"
	EventOrderAssigned      EventType = "ORDER_ASSIGNED"
	EventPaymentReceived    EventType = "PAYMENT_RECEIVED"
	EventShortageReported   EventType = "CASH_SHORTAGE_REPORTED"
	EventShortageResolved   EventType = "SHORTAGE_RESOLVED"
	EventNewGuideline       EventType = "NEW_GUIDELINE"

	EventDailyShortageAlert    EventType = "DAILY_SHORTAGE_ALERT"
	EventLargeShortageAlert    EventType = "LARGE_SHORTAGE_ALERT"
	EventUnresolvedShortages   EventType = "UNRESOLVED_SHORTAGES_ALERT"
	EventWorkerShortagePattern EventType = "WORKER_SHORTAGE_PATTERN"
	EventDailyReport           EventType = "DAILY_REPORT"
	EventWeeklyReport          EventType = "WEEKLY_REPORT"
)

// Event is a fully addressed notification ready for delivery.
type Event struct {
	Audience Audience  `json:"audience"`
	Target   string    `json:"target,omitempty"` // worker/customer id when audience is a single user
	Type     EventType `json:"type"`
	Payload  any       `json:"payload"`
}
