package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtodo/internal/identity"
	"collabtodo/internal/lock"
	"collabtodo/internal/models"
	"collabtodo/internal/realtime"
	"collabtodo/internal/storage"
	"collabtodo/internal/storage/sqlite"
)

type publishedEvent struct {
	Topic   string
	Event   string
	Payload any
}

type revocation struct {
	Topic string
	Keep  []string
}

// recorder is a realtime.Publisher that keeps every event and revocation.
type recorder struct {
	mu      sync.Mutex
	events  []publishedEvent
	revoked []revocation
	err     error
}

func (r *recorder) Revoke(_ context.Context, topic string, keep ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, revocation{Topic: topic, Keep: keep})
	return r.err
}

func (r *recorder) revocations() []revocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]revocation(nil), r.revoked...)
}

func (r *recorder) Publish(_ context.Context, topic, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Topic: topic, Event: event, Payload: payload})
	return r.err
}

func (r *recorder) last() publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return publishedEvent{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, string) (func(), error) { return nil, f.err }

type fixture struct {
	svc   *Service
	store *sqlite.Store
	bus   *recorder
}

func sequentialCodes() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("C%05d", n.Add(1)) }
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, Config{FrontendURL: "http://front.test/", NewCode: sequentialCodes()}, lock.NewLocal(time.Second))
}

func newFixtureWith(t *testing.T, cfg Config, locker lock.Locker) fixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "service.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := &recorder{}
	svc, err := New(store, bus, locker, cfg, nil)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, bus: bus}
}

func (f fixture) user(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, f.svc.HandleIdentityEvent(context.Background(), identity.Event{
		Type: EventUserCreated,
		Data: identity.EventUser{ID: id, FirstName: name},
	}))
}

func (f fixture) task(t *testing.T, owner string, shareable bool) models.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), owner, CreateTaskInput{Title: "Plan trip", IsShareable: shareable})
	require.NoError(t, err)
	return task
}

// share enables sharing on a new task owned by owner and admits members.
func (f fixture) share(t *testing.T, owner string, members ...string) models.Task {
	t.Helper()
	ctx := context.Background()

	task := f.task(t, owner, true)
	for _, m := range members {
		_, err := f.svc.AcceptInvitation(ctx, m, task.ID, task.UniqueCode)
		require.NoError(t, err)
	}
	task, err := f.svc.GetTask(ctx, owner, task.ID)
	require.NoError(t, err)
	return task
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &recorder{}, lock.NewLocal(time.Second), Config{}, nil)
	assert.Error(t, err)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task, err := f.svc.CreateTask(ctx, "alice", CreateTaskInput{Title: "  Groceries  "})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", task.Title)
	assert.Equal(t, "alice", task.CreatedBy)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Empty(t, task.Collaborators)
	assert.False(t, task.IsShareable)
	assert.Empty(t, task.UniqueCode)
	assert.Equal(t, models.SharingDisabled{}, task.Sharing())

	shared, err := f.svc.CreateTask(ctx, "alice", CreateTaskInput{Title: "Party", Priority: models.PriorityHigh, IsShareable: true})
	require.NoError(t, err)
	assert.True(t, shared.IsShareable)
	assert.NotEmpty(t, shared.UniqueCode)

	_, err = f.svc.CreateTask(ctx, "alice", CreateTaskInput{Title: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateTask(ctx, "alice", CreateTaskInput{Title: "x", Priority: "urgent"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateTaskRetriesCodeCollision(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	var i atomic.Int64
	f := newFixtureWith(t, Config{NewCode: func() string {
		return codes[int(i.Add(1)-1)%len(codes)]
	}}, lock.NewLocal(time.Second))

	first := f.task(t, "alice", true)
	second := f.task(t, "alice", true)
	assert.Equal(t, "AAAAAA", first.UniqueCode)
	assert.Equal(t, "BBBBBB", second.UniqueCode)
}

func TestCodeSpaceExhausted(t *testing.T) {
	f := newFixtureWith(t, Config{NewCode: func() string { return "SAME01" }}, lock.NewLocal(time.Second))

	f.task(t, "alice", true)
	_, err := f.svc.CreateTask(context.Background(), "alice", CreateTaskInput{Title: "t", IsShareable: true})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDefaultCodeFormat(t *testing.T) {
	f := newFixtureWith(t, Config{}, lock.NewLocal(time.Second))
	task := f.task(t, "alice", true)
	assert.Regexp(t, `^[0-9A-Z]{6}$`, task.UniqueCode)
}

func TestListViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	private := f.task(t, "alice", false)
	shared := f.share(t, "alice", "bob")
	bobs := f.task(t, "bob", false)

	ids := func(tasks []models.Task) []string {
		out := []string{}
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}

	mine, err := f.svc.ListMine(ctx, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{shared.ID, bobs.ID}, ids(mine))

	personal, err := f.svc.ListPersonal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{private.ID}, ids(personal))

	sharedList, err := f.svc.ListShared(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, sharedList, 1)
	assert.Equal(t, shared.ID, sharedList[0].ID)
	assert.Equal(t, "http://front.test/invite/"+shared.ID+"?code="+shared.UniqueCode, sharedList[0].ShareableLink)

	none, err := f.svc.ListShared(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccessControl(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.share(t, "alice", "bob")
	title := "renamed"

	_, err := f.svc.GetTask(ctx, "mallory", task.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateTask(ctx, "mallory", task.ID, models.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, "mallory", task.ID), ErrForbidden)
	_, err = f.svc.ListTodos(ctx, "mallory", task.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CreateTodo(ctx, "mallory", task.ID, CreateTodoInput{Title: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.AuthorizeTopic(ctx, "mallory", task.ID), ErrForbidden)

	_, err = f.svc.GetTask(ctx, "mallory", "missing")
	assert.ErrorIs(t, err, ErrNotFound, "existence is checked before authorization")
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, "mallory", "missing"), ErrNotFound)

	updated, err := f.svc.UpdateTask(ctx, "bob", task.ID, models.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Equal(t, "alice", updated.CreatedBy)
	assert.NoError(t, f.svc.AuthorizeTopic(ctx, "bob", task.ID))

	assert.ErrorIs(t, f.svc.DeleteTask(ctx, "bob", task.ID), ErrForbidden)
	_, err = f.svc.EnableSharing(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.DisableSharing(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	bad := models.Status("done")
	_, err = f.svc.UpdateTask(ctx, "alice", task.ID, models.TaskPatch{Status: &bad})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSharingRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "bob", "Bob")

	task := f.task(t, "alice", false)
	enabled, err := f.svc.EnableSharing(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.True(t, enabled.IsShareable)
	assert.Contains(t, enabled.ShareableLink, "/invite/"+task.ID+"?code="+enabled.UniqueCode)

	accepted, err := f.svc.AcceptInvitation(ctx, "bob", task.ID, enabled.UniqueCode)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, accepted.Collaborators)
	assert.NotContains(t, accepted.Collaborators, accepted.CreatedBy)

	bob, err := f.svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, bob.SharedTasks)
	assert.Equal(t, realtime.EventTaskUpdated, f.bus.last().Event)

	disabled, err := f.svc.DisableSharing(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.False(t, disabled.IsShareable)
	assert.Empty(t, disabled.UniqueCode)
	assert.Empty(t, disabled.Collaborators)

	bob, err = f.svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.SharedTasks)
	assert.Equal(t, []revocation{{Topic: task.ID, Keep: []string{"alice"}}}, f.bus.revocations())

	again, err := f.svc.DisableSharing(ctx, "alice", task.ID)
	require.NoError(t, err, "disabling twice is harmless")
	assert.False(t, again.IsShareable)
	assert.Empty(t, again.Collaborators)
}

func TestAcceptInvitationChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task := f.share(t, "alice", "bob")
	code := task.UniqueCode

	_, err := f.svc.AcceptInvitation(ctx, "carol", "missing", code)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.AcceptInvitation(ctx, "carol", task.ID, "WRONG1")
	assert.ErrorIs(t, err, ErrInvalidInviteCode)
	_, err = f.svc.AcceptInvitation(ctx, "carol", task.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInviteCode)

	after, err := f.svc.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, after.Collaborators, "a wrong code changes nothing")

	_, err = f.svc.AcceptInvitation(ctx, "alice", task.ID, code)
	assert.ErrorIs(t, err, ErrOwnerCannotJoin)

	_, err = f.svc.AcceptInvitation(ctx, "bob", task.ID, code)
	assert.ErrorIs(t, err, ErrAlreadyCollaborator)

	_, err = f.svc.DisableSharing(ctx, "alice", task.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptInvitation(ctx, "carol", task.ID, code)
	assert.ErrorIs(t, err, ErrTaskPrivate, "a private task rejects even its last code")

	private := f.task(t, "alice", false)
	_, err = f.svc.AcceptInvitation(ctx, "carol", private.ID, "C00001")
	assert.ErrorIs(t, err, ErrTaskPrivate)
}

func TestEnableSharingRotatesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.task(t, "alice", false)

	first, err := f.svc.EnableSharing(ctx, "alice", task.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptInvitation(ctx, "bob", task.ID, first.UniqueCode)
	require.NoError(t, err)

	second, err := f.svc.EnableSharing(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.UniqueCode, second.UniqueCode)
	assert.Equal(t, []string{"bob"}, second.Collaborators, "re-enabling keeps collaborators")

	_, err = f.svc.AcceptInvitation(ctx, "carol", task.ID, first.UniqueCode)
	assert.ErrorIs(t, err, ErrInvalidInviteCode)
	_, err = f.svc.AcceptInvitation(ctx, "carol", task.ID, second.UniqueCode)
	assert.NoError(t, err)
}

func TestEnableSharingNeverReusesCurrentCode(t *testing.T) {
	codes := []string{"KEEP01", "KEEP01", "NEXT02"}
	var i atomic.Int64
	f := newFixtureWith(t, Config{NewCode: func() string {
		return codes[int(i.Add(1)-1)%len(codes)]
	}}, lock.NewLocal(time.Second))

	task := f.task(t, "alice", true)
	require.Equal(t, "KEEP01", task.UniqueCode)

	rotated, err := f.svc.EnableSharing(context.Background(), "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "NEXT02", rotated.UniqueCode)
}

func TestToggleDerivesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.share(t, "alice", "bob")

	var todos []models.Todo
	for i := 0; i < 3; i++ {
		todo, err := f.svc.CreateTodo(ctx, "bob", task.ID, CreateTodoInput{Title: fmt.Sprintf("todo %d", i)})
		require.NoError(t, err)
		todos = append(todos, todo)
	}
	assert.Equal(t, 3, f.bus.count(realtime.EventTodoCreated))

	res, err := f.svc.ToggleTodo(ctx, "alice", todos[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Todo.IsCompleted)
	assert.Equal(t, models.StatusInProgress, res.TaskStatus)

	_, err = f.svc.ToggleTodo(ctx, "bob", todos[1].ID)
	require.NoError(t, err)
	res, err = f.svc.ToggleTodo(ctx, "bob", todos[2].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.TaskStatus)

	res, err = f.svc.ToggleTodo(ctx, "alice", todos[0].ID)
	require.NoError(t, err)
	assert.False(t, res.Todo.IsCompleted)
	assert.Equal(t, models.StatusInProgress, res.TaskStatus)

	stored, err := f.svc.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	last := f.bus.last()
	assert.Equal(t, realtime.EventTodoToggled, last.Event)
	assert.Equal(t, task.ID, last.Topic)
	assert.Equal(t, res, last.Payload)

	_, err = f.svc.ToggleTodo(ctx, "mallory", todos[0].ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ToggleTodo(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManualCompleteIsOverwrittenByToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.task(t, "alice", false)

	a, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "a"})
	require.NoError(t, err)
	_, err = f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "b"})
	require.NoError(t, err)

	completed, err := f.svc.CompleteTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	res, err := f.svc.ToggleTodo(ctx, "alice", a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.TaskStatus)
}

func TestTodoCreateAndDeleteKeepStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.task(t, "alice", false)

	a, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "a"})
	require.NoError(t, err)
	_, err = f.svc.ToggleTodo(ctx, "alice", a.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "b"})
	require.NoError(t, err)
	stored, err := f.svc.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status, "only toggles derive status")

	require.NoError(t, f.svc.DeleteTodo(ctx, "alice", a.ID))
	assert.Equal(t, realtime.EventTodoDeleted, f.bus.last().Event)
	assert.Equal(t, deletedPayload{ID: a.ID}, f.bus.last().Payload)

	assert.ErrorIs(t, f.svc.DeleteTodo(ctx, "alice", a.ID), ErrNotFound)

	_, err = f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: ""})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateTodo(ctx, "alice", "missing", CreateTodoInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTodo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.task(t, "alice", false)

	todo, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "a"})
	require.NoError(t, err)

	title := "renamed"
	res, err := f.svc.UpdateTodo(ctx, "alice", todo.ID, models.TodoPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.Todo.Title)
	assert.Equal(t, realtime.EventTodoUpdated, f.bus.last().Event)

	done := true
	res, err = f.svc.UpdateTodo(ctx, "alice", todo.ID, models.TodoPatch{IsCompleted: &done})
	require.NoError(t, err)
	assert.True(t, res.Todo.IsCompleted)
	assert.Equal(t, models.StatusCompleted, res.TaskStatus)
	assert.Equal(t, realtime.EventTodoToggled, f.bus.last().Event)

	list, err := f.svc.ListTodos(ctx, "alice", task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].TaskID)

	empty := ""
	_, err = f.svc.UpdateTodo(ctx, "alice", todo.ID, models.TodoPatch{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteTaskCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "bob", "Bob")
	task := f.share(t, "alice", "bob")

	todo, err := f.svc.CreateTodo(ctx, "bob", task.ID, CreateTodoInput{Title: "x"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTask(ctx, "alice", task.ID))
	assert.Equal(t, publishedEvent{Topic: task.ID, Event: realtime.EventTaskDeleted, Payload: deletedPayload{ID: task.ID}}, f.bus.last())
	assert.Equal(t, []revocation{{Topic: task.ID}}, f.bus.revocations())

	_, err = f.store.GetTodo(ctx, todo.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.ToggleTodo(ctx, "bob", todo.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	bob, err := f.svc.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.SharedTasks)

	_, err = f.svc.GetTask(ctx, "alice", task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bus.err = errors.New("bus down")

	task := f.task(t, "alice", false)
	todo, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "x"})
	require.NoError(t, err)
	_, err = f.svc.ToggleTodo(ctx, "alice", todo.ID)
	assert.NoError(t, err)
	_, err = f.svc.DisableSharing(ctx, "alice", task.ID)
	assert.NoError(t, err)
	assert.NoError(t, f.svc.DeleteTask(ctx, "alice", task.ID))
}

func TestLockFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWith(t, Config{NewCode: sequentialCodes()}, failingLocker{err: lock.ErrTimeout})

	task := f.task(t, "alice", false)
	_, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, lock.ErrTimeout)
	assert.ErrorIs(t, f.svc.DeleteTask(ctx, "alice", task.ID), ErrUnavailable)
}

func TestStoreDeadlineIsUnavailable(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.svc.ListMine(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConcurrentTogglesConverge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.task(t, "alice", false)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		todo, err := f.svc.CreateTodo(ctx, "alice", task.ID, CreateTodoInput{Title: fmt.Sprintf("todo %d", i)})
		require.NoError(t, err)
		ids[i] = todo.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.ToggleTodo(ctx, "alice", id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.svc.GetTask(ctx, "alice", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestHandleIdentityEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.HandleIdentityEvent(ctx, identity.Event{
		Type: EventUserCreated,
		Data: identity.EventUser{ID: "u1", FirstName: "Ada", LastName: "Lovelace"},
	}))
	u, err := f.svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.Name)

	require.NoError(t, f.svc.HandleIdentityEvent(ctx, identity.Event{
		Type: EventUserUpdated,
		Data: identity.EventUser{ID: "u1", Username: "ada"},
	}))
	u, err = f.svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Name)

	require.NoError(t, f.svc.HandleIdentityEvent(ctx, identity.Event{Type: EventUserDeleted, Data: identity.EventUser{ID: "u1"}}))
	_, err = f.svc.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, f.svc.HandleIdentityEvent(ctx, identity.Event{Type: EventUserDeleted, Data: identity.EventUser{ID: "u1"}}),
		"deleting an unknown user is acknowledged")
	assert.NoError(t, f.svc.HandleIdentityEvent(ctx, identity.Event{Type: "session.created"}))
	assert.ErrorIs(t, f.svc.HandleIdentityEvent(ctx, identity.Event{Type: EventUserCreated}), ErrValidation)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Ping(context.Background()))
}

// unreachableStore fails every task read as if the database were down.
type unreachableStore struct{ storage.Store }

func (unreachableStore) GetTask(context.Context, string) (models.Task, error) {
	return models.Task{}, fmt.Errorf("get task: %w: connection refused", storage.ErrUnavailable)
}

func (unreachableStore) ListTasks(context.Context, storage.TaskFilter) ([]models.Task, error) {
	return nil, fmt.Errorf("list tasks: %w: connection refused", storage.ErrUnavailable)
}

func TestStoreConnectivityIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	svc, err := New(unreachableStore{f.store}, f.bus, lock.NewLocal(time.Second), Config{}, nil)
	require.NoError(t, err)

	_, err = svc.ListMine(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = svc.GetTask(ctx, "alice", "t1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}
