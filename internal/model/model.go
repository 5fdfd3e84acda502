// Package model defines the dashboard records and the request payloads that
// create and update them.
//
// Stored field names are shared by the bson and json encodings so the same
// struct round-trips through MongoDB, PostgreSQL JSONB and HTTP unchanged.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection names.
const (
	PriorityTasks        = "priorityTasks"
	HighPriorityProjects = "highPriorityProjects"
	Incidents            = "incidents"
)

// PriorityTask is a to-do item on the CIO's priority list.
type PriorityTask struct {
	ID        bson.ObjectID `bson:"_id" json:"_id"`
	Title     string        `bson:"title" json:"title"`
	Priority  string        `bson:"priority" json:"priority"`
	DueDate   *time.Time    `bson:"due_date" json:"due_date"`
	Completed bool          `bson:"completed" json:"completed"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

// HighPriorityProject is a tracked project with a fixed schedule.
type HighPriorityProject struct {
	ID          bson.ObjectID `bson:"_id" json:"_id"`
	Name        string        `bson:"name" json:"name"`
	StartDate   time.Time     `bson:"start_date" json:"start_date"`
	DueDate     time.Time     `bson:"due_date" json:"due_date"`
	Status      string        `bson:"status" json:"status"`
	Responsible string        `bson:"responsible" json:"responsible"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
}

// Incident is a war-room entry.
type Incident struct {
	ID          bson.ObjectID `bson:"_id" json:"_id"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description" json:"description"`
	Status      string        `bson:"status" json:"status"`
	DueDate     *time.Time    `bson:"due_date" json:"due_date"`
	Priority    string        `bson:"priority" json:"priority"`
	Assignees   []string      `bson:"assignees" json:"assignees"`
	Timestamp   time.Time     `bson:"timestamp" json:"timestamp"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
}

const (
	DefaultIncidentStatus   = "New"
	DefaultIncidentAssignee = "Unassigned"
)

// Now returns the current time at the millisecond precision every backend
// can store.
func Now() time.Time {
	return normaliseTime(time.Now())
}

func normaliseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
