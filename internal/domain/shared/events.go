// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Dependents (caches, projections) subscribe to these.
const (
	// Ledger events
	EventXPChanged          EventType = "progress.xp_changed"
	EventPracticeXPResynced EventType = "progress.practice_xp_resynced"

	// Promotion events
	EventLevelChanged    EventType = "progress.level_changed"
	EventCriteriaToggled EventType = "progress.criteria_toggled"

	// Backpack events
	EventBackpackUpdated EventType = "backpack.updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For every progression event this is the student ID.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPChangedEvent is emitted after a ledger row was re-derived.
type XPChangedEvent struct {
	BaseEvent
	Skill        Skill   `json:"skill"`
	Source       Source  `json:"source"`
	Delta        float64 `json:"delta"`
	PracticeXP   float64 `json:"practice_xp"`
	EvaluationXP float64 `json:"evaluation_xp"`
	TotalXP      float64 `json:"total_xp"`
}

// Payload implements Event interface.
func (e XPChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"skill":         string(e.Skill),
		"source":        string(e.Source),
		"delta":         e.Delta,
		"practice_xp":   e.PracticeXP,
		"evaluation_xp": e.EvaluationXP,
		"total_xp":      e.TotalXP,
	}
}

// NewXPChangedEvent creates a new XPChangedEvent.
func NewXPChangedEvent(studentID string, skill Skill, source Source, delta, practice, evaluation float64) XPChangedEvent {
	return XPChangedEvent{
		BaseEvent:    NewBaseEvent(EventXPChanged, studentID),
		Skill:        skill,
		Source:       source,
		Delta:        delta,
		PracticeXP:   practice,
		EvaluationXP: evaluation,
		TotalXP:      practice + evaluation,
	}
}

// PracticeXPResyncedEvent is emitted once per student after a full resync.
type PracticeXPResyncedEvent struct {
	BaseEvent
	BlocksReplayed int     `json:"blocks_replayed"`
	Corrections    SkillXP `json:"corrections"`
}

// Payload implements Event interface.
func (e PracticeXPResyncedEvent) Payload() map[string]interface{} {
	corrections := make(map[string]interface{}, len(e.Corrections))
	for s, v := range e.Corrections {
		corrections[string(s)] = v
	}
	return map[string]interface{}{
		"blocks_replayed": e.BlocksReplayed,
		"corrections":     corrections,
	}
}

// NewPracticeXPResyncedEvent creates a new PracticeXPResyncedEvent.
func NewPracticeXPResyncedEvent(studentID string, blocks int, corrections SkillXP) PracticeXPResyncedEvent {
	return PracticeXPResyncedEvent{
		BaseEvent:      NewBaseEvent(EventPracticeXPResynced, studentID),
		BlocksReplayed: blocks,
		Corrections:    corrections,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Promotion Events
// ═══════════════════════════════════════════════════════════════════════════

// LevelChangedEvent is emitted when a professor promotes or demotes a student.
type LevelChangedEvent struct {
	BaseEvent
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Reason   string `json:"reason"`
	ActorID  string `json:"actor_id"`
	Forced   bool   `json:"forced"`
}

// Payload implements Event interface.
func (e LevelChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"reason":    e.Reason,
		"actor_id":  e.ActorID,
		"forced":    e.Forced,
	}
}

// IsPromotion returns true if the level went up.
func (e LevelChangedEvent) IsPromotion() bool {
	return e.NewLevel > e.OldLevel
}

// NewLevelChangedEvent creates a new LevelChangedEvent.
func NewLevelChangedEvent(studentID string, oldLevel, newLevel int, reason, actorID string, forced bool) LevelChangedEvent {
	return LevelChangedEvent{
		BaseEvent: NewBaseEvent(EventLevelChanged, studentID),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		Reason:    reason,
		ActorID:   actorID,
		Forced:    forced,
	}
}

// CriteriaToggledEvent is emitted when a professor flips a PROF criterion.
type CriteriaToggledEvent struct {
	BaseEvent
	CriterionID string `json:"criterion_id"`
	Passed      bool   `json:"passed"`
	AssessedBy  string `json:"assessed_by"`
}

// Payload implements Event interface.
func (e CriteriaToggledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"criterion_id": e.CriterionID,
		"passed":       e.Passed,
		"assessed_by":  e.AssessedBy,
	}
}

// NewCriteriaToggledEvent creates a new CriteriaToggledEvent.
func NewCriteriaToggledEvent(studentID, criterionID string, passed bool, assessedBy string) CriteriaToggledEvent {
	return CriteriaToggledEvent{
		BaseEvent:   NewBaseEvent(EventCriteriaToggled, studentID),
		CriterionID: criterionID,
		Passed:      passed,
		AssessedBy:  assessedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Backpack Events
// ═══════════════════════════════════════════════════════════════════════════

// BackpackUpdatedEvent is emitted after a session touched a backpack item.
type BackpackUpdatedEvent struct {
	BaseEvent
	PracticeKey    string `json:"practice_key"`
	Status         string `json:"status"`
	MasteredWeeks  int    `json:"mastered_weeks"`
	WeekJustEarned bool   `json:"week_just_earned"`
}

// Payload implements Event interface.
func (e BackpackUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"practice_key":     e.PracticeKey,
		"status":           e.Status,
		"mastered_weeks":   e.MasteredWeeks,
		"week_just_earned": e.WeekJustEarned,
	}
}

// NewBackpackUpdatedEvent creates a new BackpackUpdatedEvent.
func NewBackpackUpdatedEvent(studentID, practiceKey, status string, masteredWeeks int, weekJustEarned bool) BackpackUpdatedEvent {
	return BackpackUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventBackpackUpdated, studentID),
		PracticeKey:    practiceKey,
		Status:         status,
		MasteredWeeks:  masteredWeeks,
		WeekJustEarned: weekJustEarned,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
