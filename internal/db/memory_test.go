package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type note struct {
	ID        bson.ObjectID `bson:"_id" json:"_id"`
	Title     string        `bson:"title" json:"title"`
	Tags      []string      `bson:"tags" json:"tags"`
	DueDate   *time.Time    `bson:"due_date" json:"due_date"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}

func openNotes(t *testing.T) Collection[note] {
	t.Helper()
	db, err := NewMemoryDialer().Dial(context.Background())
	require.NoError(t, err)
	coll, err := OpenCollection[note](db, "notes")
	require.NoError(t, err)
	return coll
}

func insertNote(t *testing.T, coll Collection[note], title string, created time.Time) note {
	t.Helper()
	n := note{ID: bson.NewObjectID(), Title: title, Tags: []string{"a"}, CreatedAt: created.UTC().Truncate(time.Millisecond)}
	require.NoError(t, coll.Insert(context.Background(), n.ID, n))
	return n
}

func TestMemoryCollection_FindAllSortsDescending(t *testing.T) {
	coll := openNotes(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertNote(t, coll, "middle", base.Add(time.Hour))
	insertNote(t, coll, "oldest", base)
	insertNote(t, coll, "newest", base.Add(2*time.Hour))

	got, err := coll.FindAll(context.Background(), "created_at")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"newest", "middle", "oldest"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestMemoryCollection_FindAllEmpty(t *testing.T) {
	got, err := openNotes(t).FindAll(context.Background(), "created_at")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryCollection_FindByID(t *testing.T) {
	coll := openNotes(t)
	n := insertNote(t, coll, "first", time.Now())

	got, err := coll.FindByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got)

	_, err = coll.FindByID(context.Background(), bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCollection_UpdateByID(t *testing.T) {
	coll := openNotes(t)
	ctx := context.Background()
	n := insertNote(t, coll, "draft", time.Now())
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, coll.UpdateByID(ctx, n.ID, bson.D{
		{Key: "title", Value: "final"},
		{Key: "due_date", Value: &due},
	}))
	got, err := coll.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
	assert.Equal(t, n.CreatedAt, got.CreatedAt, "untouched fields survive")

	var cleared *time.Time
	require.NoError(t, coll.UpdateByID(ctx, n.ID, bson.D{{Key: "due_date", Value: cleared}}))
	got, err = coll.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)

	err = coll.UpdateByID(ctx, bson.NewObjectID(), bson.D{{Key: "title", Value: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCollection_FindOneAndDeleteIsAtomic(t *testing.T) {
	coll := openNotes(t)
	n := insertNote(t, coll, "doomed", time.Now())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		snapshots int
		notFound  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := coll.FindOneAndDelete(context.Background(), n.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.Equal(t, "doomed", got.Title)
				snapshots++
			case err == ErrNotFound:
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 9, notFound)
}

func TestMemoryCollection_DeleteAll(t *testing.T) {
	coll := openNotes(t)
	insertNote(t, coll, "one", time.Now())
	insertNote(t, coll, "two", time.Now())

	n, err := coll.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := coll.FindAll(context.Background(), "created_at")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryDialer_ReconnectKeepsData(t *testing.T) {
	ctx := context.Background()
	c := NewConnector(NewMemoryDialer())

	first, err := c.Connect(ctx)
	require.NoError(t, err)
	coll, err := OpenCollection[note](first, "notes")
	require.NoError(t, err)
	n := insertNote(t, coll, "kept", time.Now())

	require.NoError(t, c.Close(ctx))
	_, err = coll.FindByID(ctx, n.ID)
	assert.Error(t, err, "collection of a closed handle must fail")

	second, err := c.Connect(ctx)
	require.NoError(t, err)
	coll, err = OpenCollection[note](second, "notes")
	require.NoError(t, err)
	got, err := coll.FindByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}

func TestTableName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"priorityTasks", "priority_tasks", false},
		{"highPriorityProjects", "high_priority_projects", false},
		{"incidents", "incidents", false},
		{"Incidents", "incidents", false},
		{"drop table;", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := TableName(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "TableName(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
