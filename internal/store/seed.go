package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cio-dashboard/internal/logger"
	"cio-dashboard/internal/model"
)

const day = 24 * time.Hour

// SeedResult reports what Seed removed and inserted.
type SeedResult struct {
	Cleared  int64
	Task     model.PriorityTask
	Project  model.HighPriorityProject
	Incident model.Incident
}

// Seed clears all three collections and inserts one sample record in each.
// Dates are relative to now.
func (s *Store) Seed(ctx context.Context, now time.Time) (SeedResult, error) {
	var res SeedResult

	for name, clear := range map[string]func(context.Context) (int64, error){
		"tasks":     s.Tasks.DeleteAll,
		"projects":  s.Projects.DeleteAll,
		"incidents": s.Incidents.DeleteAll,
	} {
		n, err := clear(ctx)
		if err != nil {
			return res, fmt.Errorf("clear %s: %w", name, err)
		}
		res.Cleared += n
	}

	title, priority := "Review quarterly IT budget", "high"
	completed := false
	task, err := s.Tasks.Create(ctx, &model.TaskInput{
		Title:     &title,
		Priority:  &priority,
		DueDate:   dateAt(now.Add(7 * day)),
		Completed: &completed,
	})
	if err != nil {
		return res, fmt.Errorf("seed task: %w", err)
	}
	res.Task = task

	name, status, responsible := "ERP System Upgrade", "on track", "Waliko Simwaka"
	project, err := s.Projects.Create(ctx, &model.ProjectInput{
		Name:        &name,
		StartDate:   dateAt(now.Add(-30 * day)),
		DueDate:     dateAt(now.Add(60 * day)),
		Status:      &status,
		Responsible: &responsible,
	})
	if err != nil {
		return res, fmt.Errorf("seed project: %w", err)
	}
	res.Project = project

	incTitle, desc, incStatus, incPriority := "Server outage", "Multiple servers down in the data center", model.DefaultIncidentStatus, "Critical"
	assignees := []string{"Network Team"}
	incident, err := s.Incidents.Create(ctx, &model.IncidentInput{
		Title:       &incTitle,
		Description: &desc,
		Status:      &incStatus,
		DueDate:     dateAt(now.Add(day)),
		Priority:    &incPriority,
		Assignees:   &assignees,
	})
	if err != nil {
		return res, fmt.Errorf("seed incident: %w", err)
	}
	res.Incident = incident

	logger.Info("database seeded",
		zap.Int64("cleared", res.Cleared),
		zap.String("task_id", task.ID.Hex()),
		zap.String("project_id", project.ID.Hex()),
		zap.String("incident_id", incident.ID.Hex()),
	)
	return res, nil
}

func dateAt(t time.Time) model.Date {
	return model.DateOf(t.UTC().Format(time.RFC3339Nano))
}
