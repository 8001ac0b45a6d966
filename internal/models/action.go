package models

import "time"

// ActionType categorizes what kind of follow-up an action represents.
type ActionType string

const (
	ActionReminder       ActionType = "reminder"
	ActionTask           ActionType = "task"
	ActionEvent          ActionType = "event"
	ActionNote           ActionType = "note"
	ActionIssue          ActionType = "issue"
	ActionFollowUp       ActionType = "follow_up"
	ActionResearch       ActionType = "research"
	ActionCommunication  ActionType = "communication"
	ActionCreative       ActionType = "creative"
	ActionAdministrative ActionType = "administrative"
	ActionHealth         ActionType = "health"
	ActionFinance        ActionType = "finance"
	ActionLearning       ActionType = "learning"
	ActionShopping       ActionType = "shopping"
	ActionTravel         ActionType = "travel"
)

// Priority of an action, as estimated by the classifier.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ActionStatus tracks the user's decision on a persisted action.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusRejected ActionStatus = "rejected"
)

// ActionDetails carries the structured payload of an action.
type ActionDetails struct {
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Datetime         string   `json:"datetime,omitempty"`
	Priority         Priority `json:"priority"`
	Category         string   `json:"category"`
	UrgencyReason    string   `json:"urgency_reason,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Context          string   `json:"context,omitempty"`
}

// CandidateAction is one classifier suggestion before duplicate filtering.
type CandidateAction struct {
	Type        ActionType    `json:"type"`
	Description string        `json:"description"`
	Details     ActionDetails `json:"details"`
	Confidence  float64       `json:"confidence"`
}

// PersistedAction is the durable record created once a candidate survives
// all duplicate checks. Mutated only through the approve/reject interface.
type PersistedAction struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id"`
	ConversationKey string          `json:"conversation_key"`
	Type            ActionType      `json:"type"`
	Description     string          `json:"description"`
	Details         ActionDetails   `json:"details"`
	OriginalMessage MessageSnapshot `json:"original_message"`
	Status          ActionStatus    `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ConversationHistoryEntry is a past action scoped to one conversation,
// used both as classifier context and for similarity-based suppression.
type ConversationHistoryEntry struct {
	Type        ActionType    `json:"type"`
	Description string        `json:"description"`
	Details     ActionDetails `json:"details"`
	CreatedAt   time.Time     `json:"created_at"`
	FromOwner   bool          `json:"from_owner"`
}

// TopicRecord is one raw row of group-conversation action history, used to
// rebuild topic cluster state after a restart.
type TopicRecord struct {
	UserID      int64      `json:"user_id"`
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
