package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/observability"
)

// Service manages projects and tasks
type Service struct {
	db         *sql.DB
	enforcer   *limits.Enforcer
	recorder   audit.Recorder
	dispatcher notifications.Dispatcher
	logger     *observability.Logger
}

// NewService creates a tasks service
func NewService(db *sql.DB, enforcer *limits.Enforcer, recorder audit.Recorder,
	dispatcher notifications.Dispatcher, logger *observability.Logger) *Service {
	return &Service{db: db, enforcer: enforcer, recorder: recorder,
		dispatcher: dispatcher, logger: logger}
}

const projectColumns = `id, tenant_id, name, slug, description, status, created_by, created_at, updated_at`

const taskColumns = `id, project_id, tenant_id, title, description, status, priority,
	assignee_id, due_date, created_by, created_at, updated_at`

// CreateProject creates a project, consuming a project slot of the
// tenant's plan
func (s *Service) CreateProject(ctx context.Context, actorID int64, project *Project) (*Project, error) {
	if project.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if project.Slug == "" {
		project.Slug = generateSlug(project.Name)
	}
	project.Status = ProjectActive
	project.CreatedBy = actorID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.enforcer.CheckAndReserve(ctx, tx, project.TenantID, limits.ResourceProject); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (tenant_id, name, slug, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, project.TenantID, project.Name, project.Slug, project.Description,
		project.Status, project.CreatedBy).
		Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project: %w", err)
	}

	return project, nil
}

// GetProject retrieves a project by ID
func (s *Service) GetProject(ctx context.Context, id int64) (*Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = $1", projectColumns)
	project, err := scanProject(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// ListProjects lists a tenant's projects, most recent first
func (s *Service) ListProjects(ctx context.Context, tenantID int64) ([]*Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE tenant_id = $1 ORDER BY created_at DESC", projectColumns)
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

// ArchiveProject marks a project archived. Archived projects no longer
// count against the tenant's project limit.
func (s *Service) ArchiveProject(ctx context.Context, actorID, projectID int64) (*Project, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, ProjectArchived, projectID, ProjectActive)
	if err != nil {
		return nil, fmt.Errorf("failed to archive project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, &NotFoundError{Kind: "active project", ID: projectID}
	}

	return s.GetProject(ctx, projectID)
}

// CreateTask creates a task within a project
func (s *Service) CreateTask(ctx context.Context, actorID int64, task *Task) (*Task, error) {
	if task.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if task.Status == "" {
		task.Status = TaskTodo
	}
	if !task.Status.IsValid() {
		return nil, fmt.Errorf("invalid task status: %s", task.Status)
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if !task.Priority.IsValid() {
		return nil, fmt.Errorf("invalid task priority: %s", task.Priority)
	}

	project, err := s.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	task.TenantID = project.TenantID
	task.CreatedBy = actorID

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (project_id, tenant_id, title, description, status, priority,
			assignee_id, due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, task.ProjectID, task.TenantID, task.Title, task.Description, task.Status,
		task.Priority, task.AssigneeID, task.DueDate, task.CreatedBy).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if task.AssigneeID != nil {
		s.notifyAssignment(ctx, task)
	}

	return task, nil
}

// GetTask retrieves a task by ID
func (s *Service) GetTask(ctx context.Context, id int64) (*Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", taskColumns)
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks lists tasks matching the filter, most recent first
func (s *Service) ListTasks(ctx context.Context, filter *TaskFilter) ([]*Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks", taskColumns)
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if filter != nil {
		if filter.ProjectID != nil {
			conditions = append(conditions, fmt.Sprintf("project_id = $%d", argPos))
			args = append(args, *filter.ProjectID)
			argPos++
		}
		if filter.Status != nil {
			conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
			args = append(args, *filter.Status)
			argPos++
		}
		if filter.AssigneeID != nil {
			conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", argPos))
			args = append(args, *filter.AssigneeID)
			argPos++
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateTaskStatus moves a task to a new workflow state
func (s *Service) UpdateTaskStatus(ctx context.Context, actorID, taskID int64, status TaskStatus) (*Task, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid task status: %s", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, &NotFoundError{Kind: "task", ID: taskID}
	}

	return s.GetTask(ctx, taskID)
}

// AssignTask assigns a task to a user and notifies them
func (s *Service) AssignTask(ctx context.Context, actorID, taskID, assigneeID int64) (*Task, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET assignee_id = $1, updated_at = NOW() WHERE id = $2
	`, assigneeID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, &NotFoundError{Kind: "task", ID: taskID}
	}

	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeTaskAssign,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &task.TenantID,
		ResourceType: audit.ResourceTypeTask,
		ResourceID:   fmt.Sprintf("%d", taskID),
		Metadata:     map[string]interface{}{"assignee_id": assigneeID},
	})
	s.notifyAssignment(ctx, task)

	return task, nil
}

func (s *Service) notifyAssignment(ctx context.Context, task *Task) {
	notifications.Emit(ctx, s.dispatcher, s.logger, notifications.Notification{
		Type:      notifications.TypeTaskAssigned,
		TenantID:  task.TenantID,
		UserID:    task.AssigneeID,
		Title:     "Task assigned",
		Body:      fmt.Sprintf("You were assigned %q", task.Title),
		Metadata:  map[string]interface{}{"task_id": task.ID, "project_id": task.ProjectID},
		CreatedAt: time.Now(),
	})
}

func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.recorder == nil {
		return
	}
	event.RequestID = observability.GetRequestID(ctx)
	if err := s.recorder.Record(ctx, event); err != nil && s.logger != nil {
		s.logger.WithError(err).Error("failed to record audit event")
	}
}

func scanProject(scanner interface {
	Scan(dest ...interface{}) error
}) (*Project, error) {
	project := &Project{}
	err := scanner.Scan(
		&project.ID, &project.TenantID, &project.Name, &project.Slug,
		&project.Description, &project.Status, &project.CreatedBy,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return project, nil
}

func scanTask(scanner interface {
	Scan(dest ...interface{}) error
}) (*Task, error) {
	task := &Task{}
	var assignee sql.NullInt64
	var due sql.NullTime
	err := scanner.Scan(
		&task.ID, &task.ProjectID, &task.TenantID, &task.Title, &task.Description,
		&task.Status, &task.Priority, &assignee, &due, &task.CreatedBy,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assignee.Valid {
		id := assignee.Int64
		task.AssigneeID = &id
	}
	if due.Valid {
		d := due.Time
		task.DueDate = &d
	}
	return task, nil
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}
