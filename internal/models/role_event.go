package models

import "time"

// RoleAction identifies what happened to a member's role or whale record
type RoleAction string

const (
	RoleActionGrant        RoleAction = "grant"
	RoleActionRevoke       RoleAction = "revoke"
	RoleActionRecordUpsert RoleAction = "record_upsert"
	RoleActionRecordDelete RoleAction = "record_delete"
)

// RoleEvent is one row of the role audit trail
type RoleEvent struct {
	EventID    string     `json:"eventId" ch:"event_id"`
	RunID      string     `json:"runId" ch:"run_id"`
	UserID     string     `json:"userId" ch:"user_id"`
	RoleID     string     `json:"roleId" ch:"role_id"`
	Action     RoleAction `json:"action" ch:"action"`
	Reason     string     `json:"reason" ch:"reason"`
	Address    string     `json:"address" ch:"address"`
	OccurredAt time.Time  `json:"occurredAt" ch:"occurred_at"`
}
