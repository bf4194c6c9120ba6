package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/tenants"
)

func newTenantTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewMemoryRecorder()
	service := tenants.NewPostgresService(db, recorder, nil, nil, nil)

	server := NewServer(Services{
		Tenants:  service,
		Recorder: recorder,
		Checker:  authz.NewRoleChecker(),
	}, observability.NewLogger(observability.DebugLevel, nil), nil)

	return server, mock
}

func asSuperAdmin(r *http.Request) *http.Request {
	r.Header.Set("X-Actor-ID", "9")
	r.Header.Set("X-Actor-Role", string(authz.RoleSuperAdmin))
	return r
}

func asTenantAdmin(r *http.Request, tenantID string) *http.Request {
	r.Header.Set("X-Actor-ID", "7")
	r.Header.Set("X-Actor-Role", string(authz.RoleTenantAdmin))
	r.Header.Set("X-Actor-Tenant-ID", tenantID)
	return r
}

func tenantRow(status tenants.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "company_name", "company_email", "status",
		"is_approved", "approved_by", "approved_at", "notes", "storage_bytes", "created_at", "updated_at",
	}).AddRow(1, "Acme", "acme", "Acme Inc", "ops@acme.test", string(status),
		status == tenants.StatusActive, nil, nil, "", int64(0), now, now)
}

func TestCreateTenantEndpoint(t *testing.T) {
	server, mock := newTenantTestServer(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO tenants").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	body, _ := json.Marshal(map[string]string{"name": "Acme Inc", "company_email": "ops@acme.test"})
	req := httptest.NewRequest("POST", "/api/v1/tenants", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asTenantAdmin(req, "1"))

	require.Equal(t, http.StatusCreated, rec.Code)

	var tenant tenants.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, tenants.StatusPending, tenant.Status)
}

func TestCreateTenantRequiresIdentity(t *testing.T) {
	server, _ := newTenantTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tenants", bytes.NewReader([]byte(`{"name":"x"}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApproveTenantEndpoint(t *testing.T) {
	server, mock := newTenantTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(tenantRow(tenants.StatusPending))
	mock.ExpectExec("UPDATE tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1").
		WithArgs(int64(1)).
		WillReturnRows(tenantRow(tenants.StatusActive))

	req := httptest.NewRequest("POST", "/api/v1/tenants/1/approve", bytes.NewReader([]byte(`{"notes":"verified"}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	require.Equal(t, http.StatusOK, rec.Code)

	var tenant tenants.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, tenants.StatusActive, tenant.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveTenantForbiddenForTenantAdmin(t *testing.T) {
	server, _ := newTenantTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tenants/1/approve", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asTenantAdmin(req, "1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveActiveTenantConflicts(t *testing.T) {
	server, mock := newTenantTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(tenantRow(tenants.StatusActive))
	mock.ExpectRollback()

	req := httptest.NewRequest("POST", "/api/v1/tenants/1/approve", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetTenantCrossTenantForbidden(t *testing.T) {
	server, _ := newTenantTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/tenants/2", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asTenantAdmin(req, "1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTenantsInvalidStatus(t *testing.T) {
	server, _ := newTenantTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/tenants?status=BOGUS", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
