package model

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ValidationError is a client mistake in a request payload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// A Date satisfies "required" only when it carries a non-empty value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(Date)
		if !ok || d.Empty() {
			return nil
		}
		return string(d.raw)
	}, Date{})
	return v
}

func check(in any, message string) error {
	if err := validate.Struct(in); err != nil {
		return &ValidationError{Message: message}
	}
	return nil
}

// TaskInput is the payload for creating or updating a PriorityTask.
type TaskInput struct {
	Title     *string `json:"title" validate:"required,min=1"`
	Priority  *string `json:"priority" validate:"required,min=1"`
	DueDate   Date    `json:"due_date"`
	Completed *bool   `json:"completed"`
}

// Validate checks the fields required to create a task.
func (in *TaskInput) Validate() error {
	return check(in, "Title and priority are required")
}

// NewTask builds the record to insert.
func (in *TaskInput) NewTask(id bson.ObjectID, now time.Time) (PriorityTask, error) {
	due, err := in.DueDate.Optional("due_date")
	if err != nil {
		return PriorityTask{}, err
	}
	return PriorityTask{
		ID:        id,
		Title:     deref(in.Title),
		Priority:  deref(in.Priority),
		DueDate:   due,
		Completed: in.Completed != nil && *in.Completed,
		CreatedAt: normaliseTime(now),
	}, nil
}

// Changes returns the fields present in the payload.
func (in *TaskInput) Changes() (bson.D, error) {
	var set bson.D
	if in.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *in.Title})
	}
	if in.Priority != nil {
		set = append(set, bson.E{Key: "priority", Value: *in.Priority})
	}
	if in.DueDate.Set {
		due, err := in.DueDate.Optional("due_date")
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: "due_date", Value: due})
	}
	if in.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: *in.Completed})
	}
	return set, nil
}

// ProjectInput is the payload for creating or updating a HighPriorityProject.
type ProjectInput struct {
	Name        *string `json:"name" validate:"required,min=1"`
	StartDate   Date    `json:"start_date" validate:"required"`
	DueDate     Date    `json:"due_date" validate:"required"`
	Status      *string `json:"status" validate:"required,min=1"`
	Responsible *string `json:"responsible" validate:"required,min=1"`
}

func (in *ProjectInput) Validate() error {
	return check(in, "All fields are required")
}

func (in *ProjectInput) NewProject(id bson.ObjectID, now time.Time) (HighPriorityProject, error) {
	start, err := in.StartDate.Parse("start_date")
	if err != nil {
		return HighPriorityProject{}, err
	}
	due, err := in.DueDate.Parse("due_date")
	if err != nil {
		return HighPriorityProject{}, err
	}
	return HighPriorityProject{
		ID:          id,
		Name:        deref(in.Name),
		StartDate:   start,
		DueDate:     due,
		Status:      deref(in.Status),
		Responsible: deref(in.Responsible),
		CreatedAt:   normaliseTime(now),
	}, nil
}

// Changes returns the fields present in the payload. Project dates cannot be
// cleared, so a null date is rejected.
func (in *ProjectInput) Changes() (bson.D, error) {
	var set bson.D
	if in.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *in.Name})
	}
	if in.StartDate.Set {
		start, err := in.StartDate.Parse("start_date")
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: "start_date", Value: start})
	}
	if in.DueDate.Set {
		due, err := in.DueDate.Parse("due_date")
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: "due_date", Value: due})
	}
	if in.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *in.Status})
	}
	if in.Responsible != nil {
		set = append(set, bson.E{Key: "responsible", Value: *in.Responsible})
	}
	return set, nil
}

// IncidentInput is the payload for creating or updating an Incident.
type IncidentInput struct {
	Title       *string   `json:"title" validate:"required,min=1"`
	Description *string   `json:"description" validate:"required,min=1"`
	Status      *string   `json:"status"`
	DueDate     Date      `json:"due_date"`
	Priority    *string   `json:"priority" validate:"required,min=1"`
	Assignees   *[]string `json:"assignees"`
	Timestamp   Date      `json:"timestamp"`
}

func (in *IncidentInput) Validate() error {
	return check(in, "Title, description and priority are required")
}

// NewIncident builds the record to insert, filling the status, assignee and
// event-time defaults.
func (in *IncidentInput) NewIncident(id bson.ObjectID, now time.Time) (Incident, error) {
	due, err := in.DueDate.Optional("due_date")
	if err != nil {
		return Incident{}, err
	}

	created := normaliseTime(now)
	ts := created
	if !in.Timestamp.Empty() {
		if ts, err = in.Timestamp.Parse("timestamp"); err != nil {
			return Incident{}, err
		}
	}

	status := DefaultIncidentStatus
	if in.Status != nil && *in.Status != "" {
		status = *in.Status
	}
	assignees := []string{DefaultIncidentAssignee}
	if in.Assignees != nil && *in.Assignees != nil {
		assignees = *in.Assignees
	}

	return Incident{
		ID:          id,
		Title:       deref(in.Title),
		Description: deref(in.Description),
		Status:      status,
		DueDate:     due,
		Priority:    deref(in.Priority),
		Assignees:   assignees,
		Timestamp:   ts,
		CreatedAt:   created,
	}, nil
}

// Changes returns the fields present in the payload. The event timestamp
// is fixed at creation.
func (in *IncidentInput) Changes() (bson.D, error) {
	var set bson.D
	if in.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *in.Title})
	}
	if in.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *in.Description})
	}
	if in.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *in.Status})
	}
	if in.DueDate.Set {
		due, err := in.DueDate.Optional("due_date")
		if err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: "due_date", Value: due})
	}
	if in.Priority != nil {
		set = append(set, bson.E{Key: "priority", Value: *in.Priority})
	}
	if in.Assignees != nil && *in.Assignees != nil {
		set = append(set, bson.E{Key: "assignees", Value: *in.Assignees})
	}
	return set, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
