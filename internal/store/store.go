package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"cio-dashboard/internal/db"
	"cio-dashboard/internal/metrics"
	"cio-dashboard/internal/model"
)

// Store groups the three repositories over one connector.
type Store struct {
	Tasks     *Tasks
	Projects  *Projects
	Incidents *Incidents
}

// New builds every repository on conn. m may be nil.
func New(conn *db.Connector, m *metrics.Metrics) *Store {
	return &Store{
		Tasks:     NewTasks(conn, m),
		Projects:  NewProjects(conn, m),
		Incidents: NewIncidents(conn, m),
	}
}

// clock is overridden in tests.
type clock func() time.Time

// Tasks is the priority task repository, newest created first.
type Tasks struct {
	repo repository[model.PriorityTask]
	now  clock
}

func NewTasks(conn *db.Connector, m *metrics.Metrics) *Tasks {
	return &Tasks{
		repo: repository[model.PriorityTask]{conn: conn, collection: model.PriorityTasks, sortField: "created_at", metrics: m},
		now:  model.Now,
	}
}

func (t *Tasks) List(ctx context.Context) ([]model.PriorityTask, error) {
	return t.repo.list(ctx)
}

func (t *Tasks) GetByID(ctx context.Context, id string) (model.PriorityTask, error) {
	return t.repo.get(ctx, id)
}

func (t *Tasks) Create(ctx context.Context, in *model.TaskInput) (model.PriorityTask, error) {
	id := bson.NewObjectID()
	doc, err := in.NewTask(id, t.now())
	if err != nil {
		return model.PriorityTask{}, err
	}
	return t.repo.create(ctx, id, doc)
}

func (t *Tasks) Update(ctx context.Context, id string, in *model.TaskInput) (model.PriorityTask, error) {
	set, err := in.Changes()
	if err != nil {
		return model.PriorityTask{}, err
	}
	return t.repo.update(ctx, id, set)
}

// Delete removes the task and returns it as it was.
func (t *Tasks) Delete(ctx context.Context, id string) (model.PriorityTask, error) {
	return t.repo.delete(ctx, id)
}

func (t *Tasks) DeleteAll(ctx context.Context) (int64, error) {
	return t.repo.deleteAll(ctx)
}

// Projects is the high-priority project repository, latest start first.
type Projects struct {
	repo repository[model.HighPriorityProject]
	now  clock
}

func NewProjects(conn *db.Connector, m *metrics.Metrics) *Projects {
	return &Projects{
		repo: repository[model.HighPriorityProject]{conn: conn, collection: model.HighPriorityProjects, sortField: "start_date", metrics: m},
		now:  model.Now,
	}
}

func (p *Projects) List(ctx context.Context) ([]model.HighPriorityProject, error) {
	return p.repo.list(ctx)
}

func (p *Projects) GetByID(ctx context.Context, id string) (model.HighPriorityProject, error) {
	return p.repo.get(ctx, id)
}

func (p *Projects) Create(ctx context.Context, in *model.ProjectInput) (model.HighPriorityProject, error) {
	id := bson.NewObjectID()
	doc, err := in.NewProject(id, p.now())
	if err != nil {
		return model.HighPriorityProject{}, err
	}
	return p.repo.create(ctx, id, doc)
}

func (p *Projects) Update(ctx context.Context, id string, in *model.ProjectInput) (model.HighPriorityProject, error) {
	set, err := in.Changes()
	if err != nil {
		return model.HighPriorityProject{}, err
	}
	return p.repo.update(ctx, id, set)
}

func (p *Projects) Delete(ctx context.Context, id string) (model.HighPriorityProject, error) {
	return p.repo.delete(ctx, id)
}

func (p *Projects) DeleteAll(ctx context.Context) (int64, error) {
	return p.repo.deleteAll(ctx)
}

// Incidents is the war-room repository, most recent event first.
type Incidents struct {
	repo repository[model.Incident]
	now  clock
}

func NewIncidents(conn *db.Connector, m *metrics.Metrics) *Incidents {
	return &Incidents{
		repo: repository[model.Incident]{conn: conn, collection: model.Incidents, sortField: "timestamp", metrics: m},
		now:  model.Now,
	}
}

func (i *Incidents) List(ctx context.Context) ([]model.Incident, error) {
	return i.repo.list(ctx)
}

func (i *Incidents) GetByID(ctx context.Context, id string) (model.Incident, error) {
	return i.repo.get(ctx, id)
}

func (i *Incidents) Create(ctx context.Context, in *model.IncidentInput) (model.Incident, error) {
	id := bson.NewObjectID()
	doc, err := in.NewIncident(id, i.now())
	if err != nil {
		return model.Incident{}, err
	}
	return i.repo.create(ctx, id, doc)
}

func (i *Incidents) Update(ctx context.Context, id string, in *model.IncidentInput) (model.Incident, error) {
	set, err := in.Changes()
	if err != nil {
		return model.Incident{}, err
	}
	return i.repo.update(ctx, id, set)
}

func (i *Incidents) Delete(ctx context.Context, id string) (model.Incident, error) {
	return i.repo.delete(ctx, id)
}

func (i *Incidents) DeleteAll(ctx context.Context) (int64, error) {
	return i.repo.deleteAll(ctx)
}
