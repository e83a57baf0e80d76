package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"collabtodo/internal/models"
	"collabtodo/internal/storage"
)

// setupTestStore connects to MONGO_TEST_URI and uses a throwaway database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("collabtodo_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, dbName, nil)
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}

	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestMongoSharingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.UpsertUser(ctx, "bob", "Bob")
	require.NoError(t, err)

	task, err := s.CreateTask(ctx, models.Task{ID: "t1", Title: "t", Priority: models.PriorityMedium, Status: models.StatusPending, CreatedBy: "owner"})
	require.NoError(t, err)
	assert.Empty(t, task.Collaborators)

	_, err = s.EnableSharing(ctx, "t1", "ABC123", "owner")
	require.NoError(t, err)

	_, err = s.CreateTask(ctx, models.Task{ID: "t2", Title: "t", Priority: models.PriorityMedium, Status: models.StatusPending, CreatedBy: "owner"})
	require.NoError(t, err)
	_, err = s.EnableSharing(ctx, "t2", "ABC123", "owner")
	assert.ErrorIs(t, err, storage.ErrCodeConflict)

	task, err = s.AddCollaborator(ctx, "t1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, task.Collaborators)

	_, err = s.AddCollaborator(ctx, "t1", "owner")
	assert.ErrorIs(t, err, storage.ErrOwnerCollaborator)

	user, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, user.SharedTasks)

	task, removed, err := s.DisableSharing(ctx, "t1", "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, removed)
	assert.False(t, task.IsShareable)
	assert.Empty(t, task.UniqueCode)
	assert.Empty(t, task.Collaborators)

	user, err = s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, user.SharedTasks)
}

func TestMongoDeleteCascade(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.UpsertUser(ctx, "bob", "Bob")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, models.Task{ID: "t1", Title: "t", Priority: models.PriorityMedium, Status: models.StatusPending, CreatedBy: "owner"})
	require.NoError(t, err)
	_, err = s.EnableSharing(ctx, "t1", "DEL001", "owner")
	require.NoError(t, err)
	_, err = s.AddCollaborator(ctx, "t1", "bob")
	require.NoError(t, err)

	_, err = s.CreateTodo(ctx, models.Todo{ID: "d1", TaskID: "t1", Title: "x", Priority: models.PriorityLow, CreatedBy: "owner"})
	require.NoError(t, err)
	_, err = s.CreateTodo(ctx, models.Todo{ID: "d2", TaskID: "missing", Title: "x", Priority: models.PriorityLow, CreatedBy: "owner"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	done, total, err := s.CountTodos(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, done)
	assert.Equal(t, 1, total)

	require.NoError(t, s.DeleteTask(ctx, "t1"))

	_, err = s.GetTodo(ctx, "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	user, err := s.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, user.SharedTasks)
	assert.ErrorIs(t, s.DeleteTask(ctx, "t1"), storage.ErrNotFound)
}

func TestClassifyConnectivityErrors(t *testing.T) {
	network := mongo.CommandError{Code: 6, Message: "connection reset", Labels: []string{"NetworkError"}}
	assert.ErrorIs(t, classify(network), storage.ErrUnavailable)
	assert.ErrorIs(t, classify(fmt.Errorf("find: %w", context.DeadlineExceeded)), storage.ErrUnavailable)

	plain := errors.New("bad query")
	assert.Equal(t, plain, classify(plain))
	assert.NotErrorIs(t, classify(mongo.ErrNoDocuments), storage.ErrUnavailable)
	assert.NoError(t, classify(nil))
}
