package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/notifications"
)

func newService(t *testing.T) (*Service, sqlmock.Sqlmock, *audit.MemoryRecorder, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	recorder := audit.NewMemoryRecorder()
	enforcer := limits.NewEnforcer(db, nil)
	dispatcher := notifications.NewRedisDispatcher(client, nil)
	return NewService(db, enforcer, recorder, dispatcher, nil), mock, recorder, server
}

func projectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "slug", "description", "status", "created_by",
		"created_at", "updated_at",
	})
}

func addProjectRow(rows *sqlmock.Rows, id int64, status ProjectStatus) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, int64(1), "Migration", "migration", "", string(status), int64(7), now, now)
}

func taskRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "tenant_id", "title", "description", "status", "priority",
		"assignee_id", "due_date", "created_by", "created_at", "updated_at",
	})
}

func addTaskRow(rows *sqlmock.Rows, id int64, assignee interface{}) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, int64(5), int64(1), "Ship schema change", "", "TODO", "MEDIUM",
		assignee, nil, int64(7), now, now)
}

func TestCreateProjectUnderLimit(t *testing.T) {
	service, mock, _, _ := newService(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, storage_bytes FROM tenants WHERE id (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"status", "storage_bytes"}).AddRow("ACTIVE", 0))
	mock.ExpectQuery("SELECT p.max_projects FROM subscriptions s JOIN plans p").
		WillReturnRows(sqlmock.NewRows([]string{"max_projects"}).AddRow(20))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("INSERT INTO projects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))
	mock.ExpectCommit()

	project, err := service.CreateProject(context.Background(), 7, &Project{
		TenantID: 1, Name: "Data Migration",
	})
	require.NoError(t, err)

	assert.Equal(t, "data-migration", project.Slug)
	assert.Equal(t, ProjectActive, project.Status)
	assert.Equal(t, int64(7), project.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProjectAtLimitDenied(t *testing.T) {
	service, mock, _, _ := newService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, storage_bytes FROM tenants WHERE id (.+) FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"status", "storage_bytes"}).AddRow("ACTIVE", 0))
	mock.ExpectQuery("SELECT p.max_projects FROM subscriptions s JOIN plans p").
		WillReturnRows(sqlmock.NewRows([]string{"max_projects"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	_, err := service.CreateProject(context.Background(), 7, &Project{TenantID: 1, Name: "Overflow"})
	require.Error(t, err)
	assert.True(t, limits.IsLimitExceeded(err))
}

func TestArchiveProject(t *testing.T) {
	service, mock, _, _ := newService(t)

	mock.ExpectExec("UPDATE projects SET status").
		WithArgs(ProjectArchived, int64(5), ProjectActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM projects WHERE id = \\$1").
		WithArgs(int64(5)).
		WillReturnRows(addProjectRow(projectRows(), 5, ProjectArchived))

	project, err := service.ArchiveProject(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.Equal(t, ProjectArchived, project.Status)
}

func TestArchiveProjectAlreadyArchived(t *testing.T) {
	service, mock, _, _ := newService(t)

	mock.ExpectExec("UPDATE projects SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := service.ArchiveProject(context.Background(), 7, 5)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCreateTaskDefaults(t *testing.T) {
	service, mock, _, _ := newService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM projects WHERE id = \\$1").
		WithArgs(int64(5)).
		WillReturnRows(addProjectRow(projectRows(), 5, ProjectActive))
	mock.ExpectQuery("INSERT INTO tasks").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(40, now, now))

	task, err := service.CreateTask(context.Background(), 7, &Task{
		ProjectID: 5, Title: "Ship schema change",
	})
	require.NoError(t, err)

	assert.Equal(t, TaskTodo, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, int64(1), task.TenantID)
}

func TestCreateTaskValidation(t *testing.T) {
	service, _, _, _ := newService(t)

	_, err := service.CreateTask(context.Background(), 7, &Task{ProjectID: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")

	_, err = service.CreateTask(context.Background(), 7, &Task{
		ProjectID: 5, Title: "x", Priority: TaskPriority("WHENEVER"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task priority")
}

func TestAssignTaskNotifiesAndAudits(t *testing.T) {
	service, mock, recorder, server := newService(t)

	mock.ExpectExec("UPDATE tasks SET assignee_id").
		WithArgs(int64(8), int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id = \\$1").
		WithArgs(int64(40)).
		WillReturnRows(addTaskRow(taskRows(), 40, int64(8)))

	task, err := service.AssignTask(context.Background(), 7, 40, 8)
	require.NoError(t, err)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, int64(8), *task.AssigneeID)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeTaskAssign, events[0].EventType)

	payload, err := server.Lpop(notifications.QueueKey)
	require.NoError(t, err)

	var n notifications.Notification
	require.NoError(t, json.Unmarshal([]byte(payload), &n))
	assert.Equal(t, notifications.TypeTaskAssigned, n.Type)
	require.NotNil(t, n.UserID)
	assert.Equal(t, int64(8), *n.UserID)
}

func TestAssignTaskNotFound(t *testing.T) {
	service, mock, _, _ := newService(t)

	mock.ExpectExec("UPDATE tasks SET assignee_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := service.AssignTask(context.Background(), 7, 404, 8)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestUpdateTaskStatus(t *testing.T) {
	service, mock, _, _ := newService(t)

	mock.ExpectExec("UPDATE tasks SET status").
		WithArgs(TaskDone, int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE id = \\$1").
		WithArgs(int64(40)).
		WillReturnRows(addTaskRow(taskRows(), 40, nil))

	_, err := service.UpdateTaskStatus(context.Background(), 7, 40, TaskDone)
	require.NoError(t, err)

	_, err = service.UpdateTaskStatus(context.Background(), 7, 40, TaskStatus("SHIPPED"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task status")
}

func TestListTasksFilters(t *testing.T) {
	service, mock, _, _ := newService(t)

	projectID := int64(5)
	status := TaskTodo

	mock.ExpectQuery("SELECT (.+) FROM tasks WHERE project_id = \\$1 AND status = \\$2").
		WithArgs(projectID, status).
		WillReturnRows(addTaskRow(addTaskRow(taskRows(), 40, nil), 41, nil))

	tasks, err := service.ListTasks(context.Background(), &TaskFilter{
		ProjectID: &projectID, Status: &status,
	})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
