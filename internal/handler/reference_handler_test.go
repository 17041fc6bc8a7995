package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/middleware"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/repository"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/service"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/middleware/requestmeta"
)

type referenceServiceMock struct {
	submitResp *dto.SubmitReferencesResult
	submitErr  error
	lastActor  models.Actor
	lastSubmit dto.SubmitReferencesRequest
	mineResp   []models.Reference
	lastUserID string
	listResp   []models.Reference
	lastQuery  dto.ReferenceQuery
	listCalled bool
	getErr     error
}

func (m *referenceServiceMock) Submit(ctx context.Context, actor models.Actor, req dto.SubmitReferencesRequest) (*dto.SubmitReferencesResult, error) {
	m.lastActor = actor
	m.lastSubmit = req
	return m.submitResp, m.submitErr
}

func (m *referenceServiceMock) ListMine(ctx context.Context, userID string) ([]models.Reference, error) {
	m.lastUserID = userID
	return m.mineResp, nil
}

func (m *referenceServiceMock) List(ctx context.Context, query dto.ReferenceQuery) ([]models.Reference, *models.Pagination, error) {
	m.listCalled = true
	m.lastQuery = query
	return m.listResp, &models.Pagination{Page: 1, PageSize: 50, TotalCount: len(m.listResp)}, nil
}

func (m *referenceServiceMock) Get(ctx context.Context, id string) (*models.Reference, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Reference{ID: id}, nil
}

type statusChangerMock struct {
	lastID     string
	lastStatus models.ReferenceStatus
	lastActor  models.Actor
	err        error
}

func (m *statusChangerMock) ChangeStatus(ctx context.Context, id string, status models.ReferenceStatus, actor models.Actor) (*dto.StatusChangeResult, error) {
	m.lastID, m.lastStatus, m.lastActor = id, status, actor
	if m.err != nil {
		return nil, m.err
	}
	return &dto.StatusChangeResult{Old: models.Reference{ID: id, Status: models.ReferenceStatusPending}, New: models.Reference{ID: id, Status: status}}, nil
}

type auditTrailMock struct{}

func (auditTrailMock) Trail(ctx context.Context, referenceID string) ([]models.AuditLog, error) {
	return []models.AuditLog{{EntityID: referenceID, Action: models.AuditActionCreate}}, nil
}

type exporterMock struct {
	lastFormat dto.ExportFormat
}

func (m *exporterMock) Outreach(ctx context.Context, format dto.ExportFormat, query dto.ReferenceQuery) (*service.ExportFile, error) {
	m.lastFormat = format
	if format != dto.ExportFormatCSV && format != dto.ExportFormatPDF {
		return nil, appErrors.Validation("invalid export format", nil)
	}
	return &service.ExportFile{Filename: "reference-outreach.csv", ContentType: "text/csv", Body: []byte("Voter\n")}, nil
}

type referenceHandlerFixture struct {
	router   *gin.Engine
	refs     *referenceServiceMock
	workflow *statusChangerMock
	exporter *exporterMock
}

func newReferenceHandlerFixture(claims *models.JWTClaims) *referenceHandlerFixture {
	gin.SetMode(gin.TestMode)
	f := &referenceHandlerFixture{
		refs:     &referenceServiceMock{},
		workflow: &statusChangerMock{},
		exporter: &exporterMock{},
	}
	h := NewReferenceHandler(f.refs, f.workflow, auditTrailMock{}, f.exporter)

	r := gin.New()
	r.Use(requestmeta.Middleware(), func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	r.POST("/references", h.Submit)
	r.GET("/references", h.ListMine)
	r.GET("/admin/references", h.AdminList)
	r.GET("/admin/references/export", h.Export)
	r.GET("/admin/references/:id", h.AdminGet)
	r.PATCH("/admin/references/:id/status", h.ChangeStatus)
	r.GET("/admin/references/:id/audit", h.AuditTrail)
	f.router = r
	return f
}

func (f *referenceHandlerFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const (
	voterID = "3f6c1d2e-8a4b-4c5d-9e0f-1a2b3c4d5e6f"
	adminID = "7b2e9c41-5d3a-4f68-8c1b-2e4d6f8a0b13"
)

var voterClaims = &models.JWTClaims{UserID: voterID, Role: models.RoleVoter}
var adminClaims = &models.JWTClaims{UserID: adminID, Role: models.RoleAdmin}

func TestReferenceHandlerSubmitStatusCodes(t *testing.T) {
	f := newReferenceHandlerFixture(voterClaims)
	payload := `{"references":[{"name":"Asha","contact":"98765 00001"}]}`

	f.refs.submitResp = &dto.SubmitReferencesResult{Created: []models.Reference{{ID: "ref-1"}}, Message: "1 reference submitted"}
	w := f.do(http.MethodPost, "/references", payload)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, voterID, f.refs.lastActor.ID)
	assert.Equal(t, models.RoleVoter, f.refs.lastActor.Role)
	assert.NotEmpty(t, f.refs.lastActor.Client)
	require.Len(t, f.refs.lastSubmit.References, 1)
	assert.Equal(t, "98765 00001", f.refs.lastSubmit.References[0].Contact)

	f.refs.submitResp = &dto.SubmitReferencesResult{Created: []models.Reference{}, SkippedExisting: 1, Message: "All 1 references were already submitted"}
	w = f.do(http.MethodPost, "/references", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data dto.SubmitReferencesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.SkippedExisting)
}

func TestReferenceHandlerSubmitErrors(t *testing.T) {
	f := newReferenceHandlerFixture(voterClaims)
	w := f.do(http.MethodPost, "/references", `{"references":[`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.refs.submitErr = appErrors.Validation("validation failed", []appErrors.FieldError{
		{Field: "references[0].contact", Message: "must be a valid 10-digit mobile number"},
		{Field: "references[1].name", Message: "is required"},
	})
	w = f.do(http.MethodPost, "/references", `{"references":[{"name":"A","contact":"1"},{"name":"","contact":"9876500002"}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrValidation.Code, body.Error.Code)
	assert.Len(t, body.Error.Details, 2)

	f.refs.submitErr = appErrors.Persistence(errors.New("tx aborted"), "failed to store references")
	w = f.do(http.MethodPost, "/references", `{"references":[{"name":"A","contact":"9876500001"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "tx aborted")

	anon := newReferenceHandlerFixture(nil)
	w = anon.do(http.MethodPost, "/references", `{"references":[]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReferenceHandlerListMine(t *testing.T) {
	f := newReferenceHandlerFixture(voterClaims)
	f.refs.mineResp = []models.Reference{{ID: "ref-1"}}
	w := f.do(http.MethodGet, "/references", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, voterID, f.refs.lastUserID)
}

func TestReferenceHandlerAdminListParsesFilters(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	w := f.do(http.MethodGet, "/admin/references?userId="+voterID+"&status=pending,CONTACTED&whatsappSent=false&page=2&limit=25", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, f.refs.listCalled)
	q := f.refs.lastQuery
	assert.Equal(t, voterID, q.UserID)
	assert.Equal(t, []models.ReferenceStatus{models.ReferenceStatusPending, models.ReferenceStatusContacted}, q.Status)
	require.NotNil(t, q.WhatsappSent)
	assert.False(t, *q.WhatsappSent)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 25, q.PageSize)
}

func TestReferenceHandlerAdminListRejectsBadFilters(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	w := f.do(http.MethodGet, "/admin/references?whatsappSent=maybe&page=0", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, f.refs.listCalled)
	assert.Contains(t, w.Body.String(), "whatsappSent")
	assert.Contains(t, w.Body.String(), "page")
}

func TestReferenceHandlerAdminGetNotFound(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	f.refs.getErr = appErrors.Clone(appErrors.ErrNotFound, "reference not found")
	w := f.do(http.MethodGet, "/admin/references/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReferenceHandlerChangeStatus(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	w := f.do(http.MethodPatch, "/admin/references/ref-1/status", `{"status":" applied "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref-1", f.workflow.lastID)
	assert.Equal(t, models.ReferenceStatusApplied, f.workflow.lastStatus)
	assert.Equal(t, adminID, f.workflow.lastActor.ID)

	f.workflow.err = appErrors.Clone(appErrors.ErrConflict, "status can only move forward")
	w = f.do(http.MethodPatch, "/admin/references/ref-1/status", `{"status":"PENDING"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReferenceHandlerAuditTrail(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	w := f.do(http.MethodGet, "/admin/references/ref-1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ref-1")
}

func TestReferenceHandlerExport(t *testing.T) {
	f := newReferenceHandlerFixture(adminClaims)
	w := f.do(http.MethodGet, "/admin/references/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExportFormatCSV, f.exporter.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reference-outreach.csv")

	w = f.do(http.MethodGet, "/admin/references/export?format=xlsx", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for name, tc := range map[string]struct {
		db     Pinger
		status int
	}{
		"no database": {nil, http.StatusOK},
		"reachable":   {pingStub{}, http.StatusOK},
		"unreachable": {pingStub{err: errors.New("dial tcp")}, http.StatusServiceUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			h := NewMetricsHandler(service.NewMetricsService(), tc.db)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
			h.Ready(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

// uuidColumnStore fails every lookup the way Postgres rejects text in a UUID column.
type uuidColumnStore struct {
	calls int
}

func (s *uuidColumnStore) UpdateStatus(ctx context.Context, id string, status models.ReferenceStatus, guard repository.StatusGuard) (*models.Reference, *models.Reference, error) {
	s.calls++
	return nil, nil, &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}
}

func (s *uuidColumnStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.calls++
	return nil
}

func (s *uuidColumnStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	s.calls++
	return nil, &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}
}

func TestReferenceHandlerMalformedIDIsNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &uuidColumnStore{}
	workflow := service.NewStatusWorkflow(store, nil, nil, nil, false, nil)
	trail := service.NewAuditRecorder(store, nil, nil)
	h := NewReferenceHandler(&referenceServiceMock{}, workflow, trail, &exporterMock{})

	r := gin.New()
	r.Use(requestmeta.Middleware(), func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, adminClaims)
		c.Next()
	})
	r.PATCH("/admin/references/:id/status", h.ChangeStatus)
	r.GET("/admin/references/:id/audit", h.AuditTrail)

	req := httptest.NewRequest(http.MethodPatch, "/admin/references/abc/status", bytes.NewBufferString(`{"status":"CONTACTED"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/references/abc/audit", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	assert.Zero(t, store.calls)
}
