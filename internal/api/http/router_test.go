package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-service/internal/api/dto"
	"github.com/spec-kit/lead-service/internal/api/http/handlers"
	"github.com/spec-kit/lead-service/internal/auth"
	"github.com/spec-kit/lead-service/internal/domain"
	"github.com/spec-kit/lead-service/internal/observability"
	"github.com/spec-kit/lead-service/internal/ratelimit"
	"github.com/spec-kit/lead-service/internal/repository"
	"github.com/spec-kit/lead-service/internal/service"
)

const testToken = "s3cret"

type memRepo struct {
	mu    sync.Mutex
	leads map[string]domain.Lead
}

func (r *memRepo) Insert(_ context.Context, lead *domain.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.leads[lead.ID]; exists {
		return repository.ErrDuplicateID
	}
	r.leads[lead.ID] = *lead
	return nil
}

func (r *memRepo) List(_ context.Context, filter repository.LeadFilter) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Lead
	for _, lead := range r.leads {
		if filter.State != nil && lead.State != *filter.State {
			continue
		}
		matched = append(matched, lead)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if filter.Offset >= total {
		return []domain.Lead{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lead, nil
}

func (r *memRepo) UpdateState(_ context.Context, id string, state domain.LeadState, allowedFrom []domain.LeadState, at time.Time) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, from := range allowedFrom {
		if lead.State == from {
			lead.State = state
			lead.UpdatedAt = at
			r.leads[id] = lead
			return &lead, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = data
	return nil
}

func (b *memBlobs) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	repo    *memRepo
	blobs   *memBlobs
	metrics *observability.Metrics
	clock   time.Time
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	ts := &testServer{
		repo:    &memRepo{leads: map[string]domain.Lead{}},
		blobs:   &memBlobs{objects: map[string][]byte{}},
		metrics: observability.NewMetrics(),
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	logger := zap.NewNop()
	metrics := ts.metrics
	leadService := service.NewLeadService(service.LeadDependencies{
		LeadRepo:     ts.repo,
		BlobStore:    ts.blobs,
		Metrics:      metrics,
		Logger:       logger,
		ResumeURLTTL: time.Hour,
		Clock: func() time.Time {
			ts.clock = ts.clock.Add(time.Second)
			return ts.clock
		},
	})

	ts.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(ts.app, logger, metrics, MiddlewareConfig{Timeout: 5 * time.Second, AllowedOrigins: "*"})
	RegisterRoutes(ts.app, RouteConfig{
		Health: handlers.NewHealthHandler("lead-service", "test",
			map[string]handlers.Pinger{"postgres": stubPinger{}},
			map[string]handlers.Pinger{"redis": nil}),
		Leads:          handlers.NewLeadsHandler(leadService),
		AuthMiddleware: auth.NewAuthMiddleware(token, logger),
		SubmitLimiter:  ratelimit.NewFixedWindow(nil, "leads", 10, time.Minute, logger),
		Metrics:        metrics,
	})
	return ts
}

type submission struct {
	firstName, lastName, email string
	filename, contentType      string
	data                       []byte
}

func adaSubmission() submission {
	return submission{
		firstName:   "Ada",
		lastName:    "Lovelace",
		email:       "ada@x.com",
		filename:    "cv.pdf",
		contentType: "application/pdf",
		data:        []byte("%PDF-1.7 resume"),
	}
}

func (ts *testServer) submit(t *testing.T, s submission) *nethttp.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("first_name", s.firstName))
	require.NoError(t, w.WriteField("last_name", s.lastName))
	require.NoError(t, w.WriteField("email", s.email))
	if s.filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename="%s"`, s.filename))
		h.Set("Content-Type", s.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(s.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/leads", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *nethttp.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *nethttp.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestSubmitAndAdvanceLead(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp := ts.submit(t, adaSubmission())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	created := decode[dto.LeadResponse](t, resp)

	assert.Regexp(t, `^lead_lovelace_[0-9a-f]{4}$`, created.ID)
	assert.Equal(t, domain.LeadStatePending, created.State)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Nil(t, created.ResumeURL)
	assert.Equal(t, "resumes/"+created.ID+".pdf", created.ResumeBlobKey)
	assert.Equal(t, 1, ts.blobs.count())

	resp = ts.do(t, "PATCH", "/leads/"+created.ID+"/state", testToken, dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	updated := decode[dto.LeadResponse](t, resp)
	assert.Equal(t, domain.LeadStateReachedOut, updated.State)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	require.NotNil(t, updated.ResumeURL)
	assert.Contains(t, *updated.ResumeURL, "ttl=3600")

	resp = ts.do(t, "PATCH", "/leads/"+created.ID+"/state", testToken, dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = ts.do(t, "PATCH", "/leads/"+created.ID+"/state", testToken, dto.UpdateLeadStateRequest{State: "PENDING"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", decode[errorEnvelope](t, resp).Error.Code)
}

func TestSubmitRejectsUnsupportedResume(t *testing.T) {
	ts := newTestServer(t, testToken)

	for name, mutate := range map[string]func(*submission){
		"mime":      func(s *submission) { s.contentType = "image/png" },
		"extension": func(s *submission) { s.filename = "cv.exe" },
		"missing":   func(s *submission) { s.filename = "" },
		"email":     func(s *submission) { s.email = "nope" },
	} {
		s := adaSubmission()
		mutate(&s)
		resp := ts.submit(t, s)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, name)
		assert.Equal(t, "INVALID_INPUT", decode[errorEnvelope](t, resp).Error.Code, name)
	}

	assert.Equal(t, 0, ts.blobs.count())
	_, total, err := ts.repo.List(context.Background(), repository.LeadFilter{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestSubmitUploadFailure(t *testing.T) {
	ts := newTestServer(t, testToken)
	ts.blobs.putErr = errors.New("bucket unavailable")

	resp := ts.submit(t, adaSubmission())
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_FAILURE", decode[errorEnvelope](t, resp).Error.Code)
}

func TestSubmitNeverOverwritesExistingResumes(t *testing.T) {
	ts := newTestServer(t, testToken)

	// Occupy every id a Lovelace submission can draw.
	seeded := make(map[string][]byte, 1<<16)
	for n := 0; n < 1<<16; n++ {
		id := fmt.Sprintf("lead_lovelace_%04x", n)
		key := "resumes/" + id + ".pdf"
		content := []byte("resume of " + id)
		ts.repo.leads[id] = domain.Lead{ID: id, LastName: "Lovelace", State: domain.LeadStatePending, ResumeBlobKey: key}
		ts.blobs.objects[key] = content
		seeded[key] = content
	}

	resp := ts.submit(t, adaSubmission())
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "PERSISTENCE_FAILURE", decode[errorEnvelope](t, resp).Error.Code)

	require.Equal(t, len(seeded), ts.blobs.count())
	for key, content := range seeded {
		if !assert.Equal(t, content, ts.blobs.objects[key], key) {
			break
		}
	}
}

func TestListPaginationAndFilter(t *testing.T) {
	ts := newTestServer(t, testToken)

	var ids []string
	for i := 0; i < 5; i++ {
		s := adaSubmission()
		s.lastName = fmt.Sprintf("Person%d", i)
		resp := ts.submit(t, s)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		ids = append(ids, decode[dto.LeadResponse](t, resp).ID)
	}
	for _, id := range ids[:2] {
		resp := ts.do(t, "PATCH", "/leads/"+id+"/state", testToken, dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp := ts.do(t, "GET", "/leads?skip=1&limit=2", testToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page := decode[dto.LeadListResponse](t, resp)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Skip)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Leads, 2)
	assert.Equal(t, ids[3], page.Leads[0].ID)
	assert.Equal(t, ids[2], page.Leads[1].ID)
	require.NotNil(t, page.Leads[0].ResumeURL)

	resp = ts.do(t, "GET", "/leads?state=REACHED_OUT", testToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page = decode[dto.LeadListResponse](t, resp)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 10, page.Limit)
	for _, lead := range page.Leads {
		assert.Equal(t, domain.LeadStateReachedOut, lead.State)
	}

	resp = ts.do(t, "GET", "/leads?skip=50", testToken, nil)
	page = decode[dto.LeadListResponse](t, resp)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Leads)
	assert.NotNil(t, page.Leads)
}

func TestListRejectsBadQuery(t *testing.T) {
	ts := newTestServer(t, testToken)

	for _, query := range []string{"limit=0", "limit=101", "skip=-1", "limit=ten", "state=closed"} {
		resp := ts.do(t, "GET", "/leads?"+query, testToken, nil)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, query)
		assert.Equal(t, "INVALID_INPUT", decode[errorEnvelope](t, resp).Error.Code, query)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp := ts.submit(t, adaSubmission())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	created := decode[dto.LeadResponse](t, resp)

	resp = ts.do(t, "GET", "/leads", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))

	resp = ts.do(t, "PATCH", "/leads/"+created.ID+"/state", "wrong", dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	stored, err := ts.repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatePending, stored.State)
}

func TestUnconfiguredTokenFailsClosed(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, "GET", "/leads", "anything", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "SERVER_MISCONFIGURED", decode[errorEnvelope](t, resp).Error.Code)
}

func TestUpdateStateErrors(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp := ts.do(t, "PATCH", "/leads/lead_missing_0000/state", testToken, dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[errorEnvelope](t, resp).Error.Code)

	resp = ts.do(t, "PATCH", "/leads/lead_missing_0000/state", testToken, dto.UpdateLeadStateRequest{State: "DONE"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp := ts.do(t, "GET", "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = ts.do(t, "GET", "/health/ready", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	ready := decode[map[string]any](t, resp)
	deps, ok := ready["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])

	resp = ts.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "http_requests_total"))
}

func TestErrorMetricsUseRouteTemplate(t *testing.T) {
	ts := newTestServer(t, testToken)

	for _, id := range []string{"lead_a_0001", "lead_b_0002"} {
		resp := ts.do(t, "PATCH", "/leads/"+id+"/state", "", dto.UpdateLeadStateRequest{State: "REACHED_OUT"})
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	}

	count, err := testutil.GatherAndCount(ts.metrics.Registry(), "http_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP http_errors_total Total number of error responses by code
# TYPE http_errors_total counter
http_errors_total{code="UNAUTHORIZED",method="PATCH",path="/leads/:id/state"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(ts.metrics.Registry(), strings.NewReader(expected), "http_errors_total"))
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, testToken)

	resp := ts.do(t, "GET", "/nope", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[errorEnvelope](t, resp).Error.Code)
}
