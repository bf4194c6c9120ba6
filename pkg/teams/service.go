package teams

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/limits"
	"github.com/taskhive/taskhive/pkg/observability"
)

// Service manages users, teams and memberships
type Service struct {
	db       *sql.DB
	enforcer *limits.Enforcer
	recorder audit.Recorder
	logger   *observability.Logger
}

// NewService creates a teams service
func NewService(db *sql.DB, enforcer *limits.Enforcer, recorder audit.Recorder,
	logger *observability.Logger) *Service {
	return &Service{db: db, enforcer: enforcer, recorder: recorder, logger: logger}
}

const teamColumns = `id, tenant_id, name, slug, description, owner_id, members_count, created_at, updated_at`

// InviteUser creates a workspace member account, consuming a user slot
// of the tenant's plan
func (s *Service) InviteUser(ctx context.Context, actorID int64, user *User) (*User, error) {
	if user.Email == "" {
		return nil, fmt.Errorf("user email is required")
	}
	if user.TenantID == nil {
		return nil, fmt.Errorf("user tenant is required")
	}
	if user.Role == "" {
		user.Role = "MEMBER"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.enforcer.CheckAndReserve(ctx, tx, *user.TenantID, limits.ResourceUser); err != nil {
		return nil, err
	}

	user.IsActive = true
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, role, tenant_id, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id, created_at, updated_at
	`, user.Email, user.FullName, user.Role, user.TenantID).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user: %w", err)
	}

	return user, nil
}

// CreateTeam creates a team, consuming a team slot of the tenant's plan.
// The owner becomes the first member.
func (s *Service) CreateTeam(ctx context.Context, actorID int64, team *Team) (*Team, error) {
	if team.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if team.Slug == "" {
		team.Slug = generateSlug(team.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.enforcer.CheckAndReserve(ctx, tx, team.TenantID, limits.ResourceTeam); err != nil {
		return nil, err
	}

	team.MembersCount = 1
	err = tx.QueryRowContext(ctx, `
		INSERT INTO teams (tenant_id, name, slug, description, owner_id, members_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING id, created_at, updated_at
	`, team.TenantID, team.Name, team.Slug, team.Description, team.OwnerID).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
	`, team.ID, team.OwnerID, TeamRoleOwner, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to add team owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit team: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeTeamCreate,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &team.TenantID,
		ResourceType: audit.ResourceTypeTeam,
		ResourceID:   fmt.Sprintf("%d", team.ID),
	})

	return team, nil
}

// GetTeam retrieves a team by ID
func (s *Service) GetTeam(ctx context.Context, id int64) (*Team, error) {
	query := fmt.Sprintf("SELECT %s FROM teams WHERE id = $1", teamColumns)
	team, err := scanTeam(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "team", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// ListTeams lists a tenant's teams
func (s *Service) ListTeams(ctx context.Context, tenantID int64) ([]*Team, error) {
	query := fmt.Sprintf("SELECT %s FROM teams WHERE tenant_id = $1 ORDER BY name", teamColumns)
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}

	return teams, rows.Err()
}

// DeleteTeam removes a team and its memberships
func (s *Service) DeleteTeam(ctx context.Context, actorID, teamID int64) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete team members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit team deletion: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeTeamDelete,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &team.TenantID,
		ResourceType: audit.ResourceTypeTeam,
		ResourceID:   fmt.Sprintf("%d", teamID),
	})

	return nil
}

// AddMember adds a user to a team
func (s *Service) AddMember(ctx context.Context, actorID, teamID, userID int64, role TeamRole) (*TeamMember, error) {
	if role == "" {
		role = TeamRoleMember
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM team_members WHERE team_id = $1 AND user_id = $2)
	`, teamID, userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if exists {
		return nil, &ConflictError{
			Message: fmt.Sprintf("user %d is already a member of team %d", userID, teamID),
		}
	}

	member := &TeamMember{TeamID: teamID, UserID: userID, Role: role, InvitedBy: &actorID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, joined_at
	`, teamID, userID, role, actorID).Scan(&member.ID, &member.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE teams SET members_count = members_count + 1, updated_at = NOW() WHERE id = $1
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to update member count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit membership: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeMemberAdd,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		ResourceType: audit.ResourceTypeTeam,
		ResourceID:   fmt.Sprintf("%d", teamID),
		Metadata:     map[string]interface{}{"user_id": userID},
	})

	return member, nil
}

// RemoveMember removes a user from a team
func (s *Service) RemoveMember(ctx context.Context, actorID, teamID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM team_members WHERE team_id = $1 AND user_id = $2
	`, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Kind: "team member", ID: userID}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE teams SET members_count = GREATEST(members_count - 1, 0), updated_at = NOW() WHERE id = $1
	`, teamID)
	if err != nil {
		return fmt.Errorf("failed to update member count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeMemberRemove,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		ResourceType: audit.ResourceTypeTeam,
		ResourceID:   fmt.Sprintf("%d", teamID),
		Metadata:     map[string]interface{}{"user_id": userID},
	})

	return nil
}

// ListMembers lists a team's members
func (s *Service) ListMembers(ctx context.Context, teamID int64) ([]*TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, user_id, role, invited_by, joined_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*TeamMember, 0)
	for rows.Next() {
		member := &TeamMember{}
		var invitedBy sql.NullInt64
		if err := rows.Scan(&member.ID, &member.TeamID, &member.UserID,
			&member.Role, &invitedBy, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if invitedBy.Valid {
			id := invitedBy.Int64
			member.InvitedBy = &id
		}
		members = append(members, member)
	}

	return members, rows.Err()
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

func scanTeam(scanner interface {
	Scan(dest ...interface{}) error
}) (*Team, error) {
	team := &Team{}
	err := scanner.Scan(
		&team.ID, &team.TenantID, &team.Name, &team.Slug, &team.Description,
		&team.OwnerID, &team.MembersCount, &team.CreatedAt, &team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return team, nil
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
