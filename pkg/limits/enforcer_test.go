package limits

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Enforcer, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEnforcer(db, nil), mock
}

func expectTenantRow(mock sqlmock.Sqlmock, status string, storageBytes int64, locked bool) {
	query := "SELECT status, storage_bytes FROM tenants WHERE id"
	if locked {
		query += " (.+) FOR UPDATE"
	}
	mock.ExpectQuery(query).
		WillReturnRows(sqlmock.NewRows([]string{"status", "storage_bytes"}).AddRow(status, storageBytes))
}

func expectPlanLimit(mock sqlmock.Sqlmock, column string, limit int) {
	mock.ExpectQuery("SELECT p." + column + " FROM subscriptions s JOIN plans p").
		WillReturnRows(sqlmock.NewRows([]string{column}).AddRow(limit))
}

func expectNoPlan(mock sqlmock.Sqlmock, column string) {
	mock.ExpectQuery("SELECT p." + column + " FROM subscriptions s JOIN plans p").
		WillReturnRows(sqlmock.NewRows([]string{column}))
}

func expectUsageCount(mock sqlmock.Sqlmock, table string, count int64) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM " + table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	enforcer, mock := setup(t)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, false)
	expectPlanLimit(mock, "max_users", 25)
	expectUsageCount(mock, "users", 10)
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceUser)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(10), decision.Current)
	assert.Equal(t, int64(25), decision.Limit)
}

func TestCheckDeniesAtLimit(t *testing.T) {
	enforcer, mock := setup(t)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, false)
	expectPlanLimit(mock, "max_teams", 5)
	expectUsageCount(mock, "teams", 5)
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceTeam)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonLimitReached, decision.Reason)
}

func TestCheckDeniesSuspendedTenant(t *testing.T) {
	enforcer, mock := setup(t)

	mock.ExpectBegin()
	expectTenantRow(mock, "SUSPENDED", 0, false)
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceProject)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonTenantNotActive, decision.Reason)
}

func TestCheckZeroLimitFallbackWithoutPlan(t *testing.T) {
	enforcer, mock := setup(t)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, false)
	expectNoPlan(mock, "max_projects")
	expectUsageCount(mock, "projects", 0)
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceProject)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonNoActivePlan, decision.Reason)
	assert.Equal(t, int64(0), decision.Limit)
}

func TestCheckUnlimitedSentinelBypassesCount(t *testing.T) {
	enforcer, mock := setup(t)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, false)
	expectPlanLimit(mock, "max_users", -1)
	// No usage count query expected
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceUser)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckStorageComparesBytes(t *testing.T) {
	enforcer, mock := setup(t)

	// 1 GB limit, 2 GB used
	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 2*bytesPerGB, false)
	expectPlanLimit(mock, "max_storage_gb", 1)
	mock.ExpectRollback()

	decision, err := enforcer.Check(context.Background(), 1, ResourceStorage)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(2*bytesPerGB), decision.Current)
	assert.Equal(t, bytesPerGB, decision.Limit)
}

func TestCheckAndReserveLocksTenantRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	enforcer := NewEnforcer(db, nil)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, true)
	expectPlanLimit(mock, "max_teams", 5)
	expectUsageCount(mock, "teams", 2)
	mock.ExpectCommit()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, enforcer.CheckAndReserve(context.Background(), tx, 1, ResourceTeam))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndReserveReturnsLimitExceeded(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	enforcer := NewEnforcer(db, nil)

	mock.ExpectBegin()
	expectTenantRow(mock, "ACTIVE", 0, true)
	expectPlanLimit(mock, "max_users", 5)
	expectUsageCount(mock, "users", 5)
	mock.ExpectRollback()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()

	err = enforcer.CheckAndReserve(context.Background(), tx, 1, ResourceUser)
	require.Error(t, err)
	require.True(t, IsLimitExceeded(err))

	limitErr := err.(*LimitExceededError)
	assert.Equal(t, int64(5), limitErr.Current)
	assert.Equal(t, int64(5), limitErr.Limit)
	assert.Contains(t, limitErr.Error(), "reached the user limit")
}

func TestLimitExceededErrorMessages(t *testing.T) {
	assert.Contains(t, (&LimitExceededError{TenantID: 1, Reason: ReasonTenantNotActive}).Error(), "not active")
	assert.Contains(t, (&LimitExceededError{TenantID: 1, Reason: ReasonNoActivePlan}).Error(), "no active plan")
}
