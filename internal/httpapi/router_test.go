package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"rfidattend/internal/attendance"
	"rfidattend/internal/auth"
	"rfidattend/internal/queue"
)

const testDeviceKey = "device-key-for-tests"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  *attendance.MemoryStore
	queue  *queue.InMemory
	deps   Deps
}

func newTestServer(t *testing.T, store attendance.Store) *testServer {
	t.Helper()
	mem := attendance.NewMemoryStore()
	if store == nil {
		store = mem
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.AddStudent(attendance.Student{ID: "s1", Name: "Alice Johnson", BadgeID: "RFID001", ClassName: "7A", CreatedAt: base})
	mem.AddStudent(attendance.Student{ID: "s2", Name: "Bob Williams", BadgeID: "RFID002", ClassName: "7B", CreatedAt: base.Add(time.Minute)})

	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc := attendance.NewService(store, attendance.Options{
		Location: time.UTC,
		Timeout:  time.Second,
		Now:      func() time.Time { return now },
	}, zerolog.Nop())
	guard := attendance.NewGuard(mem, time.Second, zerolog.Nop())
	if _, err := guard.Bootstrap(context.Background(), testDeviceKey); err != nil {
		t.Fatal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	q := queue.NewInMemory(4)
	deps := Deps{
		Service:  svc,
		Guard:    guard,
		Issuer:   auth.NewIssuer("test", "signing-key", time.Hour, 24*time.Hour),
		Operator: auth.Operator{Username: "admin", PasswordHash: string(hash)},
		Queue:    q,
		HealthChecks: map[string]HealthCheck{
			"store": svc.Ping,
		},
		Log: zerolog.Nop(),
	}
	return &testServer{router: NewRouter(deps), store: mem, queue: q, deps: deps}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	decode(t, w, &pair)
	return pair.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestDeviceCheckIn(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name    string
		body    map[string]string
		status  int
		success bool
		message string
	}{
		{"missing key", map[string]string{"rfid": "RFID001"}, http.StatusUnauthorized, false, "Unauthorized"},
		{"wrong key", map[string]string{"rfid": "RFID001", "apiKey": "nope"}, http.StatusUnauthorized, false, "Unauthorized"},
		{"wrong key without rfid", map[string]string{"apiKey": "nope"}, http.StatusUnauthorized, false, "Unauthorized"},
		{"missing rfid", map[string]string{"apiKey": testDeviceKey}, http.StatusBadRequest, false, "RFID is required"},
		{"blank rfid", map[string]string{"rfid": "   ", "apiKey": testDeviceKey}, http.StatusBadRequest, false, "RFID is required"},
		{"unknown badge", map[string]string{"rfid": "RFID999", "apiKey": testDeviceKey}, http.StatusNotFound, false, "Student not found"},
		{"first scan", map[string]string{"rfid": "RFID001", "apiKey": testDeviceKey}, http.StatusOK, true, "Checked in Alice Johnson"},
		{"second scan", map[string]string{"rfid": " RFID001 ", "apiKey": testDeviceKey}, http.StatusOK, true, "Already checked in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/check-in", "", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			var resp deviceResponse
			decode(t, w, &resp)
			if resp.Success != tc.success || resp.Message != tc.message {
				t.Fatalf("response = %+v", resp)
			}
		})
	}

	events, _ := s.store.ListEventsBetween(context.Background(), time.Time{}, time.Now().AddDate(10, 0, 0))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func TestDeviceCheckInHeaderKey(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/check-in", bytes.NewBufferString(`{"rfid":"RFID002"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testDeviceKey)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestDeviceCheckInMalformedBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/check-in", bytes.NewBufferString(`{"rfid":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

type unreachableStore struct {
	*attendance.MemoryStore
}

func (unreachableStore) FindByBadge(context.Context, string) ([]attendance.Student, error) {
	return nil, errors.New("connection refused")
}

// countingStore records how often check-in touches students and events.
type countingStore struct {
	*attendance.MemoryStore
	lookups atomic.Int32
	inserts atomic.Int32
}

func (c *countingStore) FindByBadge(ctx context.Context, badgeID string) ([]attendance.Student, error) {
	c.lookups.Add(1)
	return c.MemoryStore.FindByBadge(ctx, badgeID)
}

func (c *countingStore) InsertEvent(ctx context.Context, evt attendance.Event) (attendance.Event, error) {
	c.inserts.Add(1)
	return c.MemoryStore.InsertEvent(ctx, evt)
}

func TestDeviceCheckInUnauthorizedSkipsLookup(t *testing.T) {
	counting := &countingStore{MemoryStore: attendance.NewMemoryStore()}
	counting.AddStudent(attendance.Student{ID: "s1", Name: "Alice Johnson", BadgeID: "RFID001", ClassName: "7A"})
	s := newTestServer(t, counting)

	for name, body := range map[string]map[string]string{
		"missing key": {"rfid": "RFID001"},
		"wrong key":   {"rfid": "RFID001", "apiKey": "nope"},
	} {
		if w := s.do(t, http.MethodPost, "/api/check-in", "", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d", name, w.Code)
		}
	}
	if n := counting.lookups.Load(); n != 0 {
		t.Fatalf("badge lookups = %d, want 0", n)
	}
	if n := counting.inserts.Load(); n != 0 {
		t.Fatalf("event inserts = %d, want 0", n)
	}

	// the same store is used once the key is right
	if w := s.do(t, http.MethodPost, "/api/check-in", "", map[string]string{"rfid": "RFID001", "apiKey": testDeviceKey}); w.Code != http.StatusOK {
		t.Fatalf("authorized status = %d: %s", w.Code, w.Body.String())
	}
	if counting.lookups.Load() != 1 || counting.inserts.Load() != 1 {
		t.Fatalf("lookups = %d, inserts = %d", counting.lookups.Load(), counting.inserts.Load())
	}
}

func TestDeviceCheckInTransientFailure(t *testing.T) {
	s := newTestServer(t, unreachableStore{attendance.NewMemoryStore()})
	w := s.do(t, http.MethodPost, "/api/check-in", "", map[string]string{"rfid": "RFID001", "apiKey": testDeviceKey})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp deviceResponse
	decode(t, w, &resp)
	if resp.Success {
		t.Fatal("transient failure reported as success")
	}
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/v1/students"},
		{http.MethodPost, "/v1/checkins"},
		{http.MethodGet, "/v1/stats/summary"},
		{http.MethodPost, "/v1/batches"},
		{http.MethodPost, "/v1/device-key"},
		{http.MethodPost, "/api/seed"},
	}
	for _, p := range paths {
		if w := s.do(t, p.method, p.path, "", nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d", p.method, p.path, w.Code)
		}
	}

	pair, err := s.deps.Issuer.Issue("admin", auth.RoleOperator)
	if err != nil {
		t.Fatal(err)
	}
	if w := s.do(t, http.MethodGet, "/v1/students", pair.RefreshToken, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token accepted as access token: %d", w.Code)
	}
}

func TestLoginAndRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing password status = %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": "s3cret"})
	var pair auth.TokenPair
	decode(t, w, &pair)

	w = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", w.Code, w.Body.String())
	}
	if w = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": pair.AccessToken}); w.Code != http.StatusUnauthorized {
		t.Fatalf("access token accepted for refresh: %d", w.Code)
	}
}

func TestStudentRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/v1/students", token, map[string]string{"name": "Cara Diaz", "badge_id": "RFID010", "class_name": "8C"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created attendance.Student
	decode(t, w, &created)

	w = s.do(t, http.MethodPost, "/v1/students", token, map[string]string{"name": "Dup", "badge_id": "RFID010", "class_name": "8C"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate badge status = %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/v1/students", token, map[string]string{"name": "X", "badge_id": "RFID011", "class_name": " "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid input status = %d", w.Code)
	}
	var verr struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &verr)
	if verr.Fields["name"] == "" || verr.Fields["class_name"] == "" {
		t.Fatalf("fields = %v", verr.Fields)
	}

	w = s.do(t, http.MethodPut, "/v1/students/"+created.ID, token, map[string]string{"name": "Cara Diaz", "badge_id": "RFID012", "class_name": "8C"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/students", token, nil)
	var list struct {
		Students []attendance.Student `json:"students"`
	}
	decode(t, w, &list)
	if len(list.Students) != 3 || list.Students[0].BadgeID != "RFID012" {
		t.Fatalf("students = %+v", list.Students)
	}

	if w = s.do(t, http.MethodDelete, "/v1/students/"+created.ID, token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/v1/students/"+created.ID, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", w.Code)
	}
}

func TestManualCheckInAndDayLog(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t)

	if w := s.do(t, http.MethodPost, "/v1/checkins", token, map[string]string{"badge_id": "RFID002"}); w.Code != http.StatusCreated {
		t.Fatalf("manual check-in status = %d: %s", w.Code, w.Body.String())
	}
	w := s.do(t, http.MethodPost, "/v1/checkins", token, map[string]string{"badge_id": "RFID002"})
	var res attendance.Result
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Outcome != attendance.OutcomeAlreadyCheckedIn {
		t.Fatalf("repeat = %d %+v", w.Code, res)
	}
	if w = s.do(t, http.MethodPost, "/v1/checkins", token, map[string]string{"badge_id": "NOPE"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown badge status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/checkins", token, nil)
	var log struct {
		Day     string                `json:"day"`
		Entries []attendance.LogEntry `json:"entries"`
	}
	decode(t, w, &log)
	if log.Day != "2024-03-04" || len(log.Entries) != 1 || log.Entries[0].Source != attendance.SourceManual {
		t.Fatalf("log = %+v", log)
	}

	if w = s.do(t, http.MethodGet, "/v1/checkins?day=2024-03-03", token, nil); w.Code != http.StatusOK {
		t.Fatalf("past day status = %d", w.Code)
	}
	if w = s.do(t, http.MethodGet, "/v1/checkins?day=yesterday", token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad day status = %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t)
	s.do(t, http.MethodPost, "/v1/checkins", token, map[string]string{"badge_id": "RFID001"})

	w := s.do(t, http.MethodGet, "/v1/stats/summary", token, nil)
	var sum attendance.Summary
	decode(t, w, &sum)
	if sum.Total != 2 || sum.Present != 1 || sum.Absent != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	w = s.do(t, http.MethodGet, "/v1/stats/trend?days=5", token, nil)
	var trend struct {
		Points []attendance.TrendPoint `json:"points"`
	}
	decode(t, w, &trend)
	if len(trend.Points) != 5 || trend.Points[4].Present != 1 {
		t.Fatalf("trend = %+v", trend.Points)
	}
	for _, q := range []string{"days=0", "days=abc", "days=32"} {
		if w := s.do(t, http.MethodGet, "/v1/stats/trend?"+q, token, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s status = %d", q, w.Code)
		}
	}
}

func TestRequestArchiveQueuesJob(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/v1/batches", token, map[string]string{"name": "Week 10"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	// an empty body is accepted too
	if w := s.do(t, http.MethodPost, "/v1/batches", token, nil); w.Code != http.StatusAccepted {
		t.Fatalf("empty body status = %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	jobs, _ := s.queue.Consume(ctx)
	job := <-jobs
	if job.Kind != queue.KindArchive {
		t.Fatalf("job = %+v", job)
	}
	var payload queue.ArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Name != "Week 10" || payload.RequestedBy != "admin" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDeviceKeyRotation(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/v1/device-key", token, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("rotate status = %d", w.Code)
	}
	var rotated struct {
		APIKey string `json:"api_key"`
	}
	decode(t, w, &rotated)
	if len(rotated.APIKey) != 32 {
		t.Fatalf("key = %q", rotated.APIKey)
	}

	if w = s.do(t, http.MethodPost, "/api/check-in", "", map[string]string{"rfid": "RFID001", "apiKey": testDeviceKey}); w.Code != http.StatusUnauthorized {
		t.Fatalf("old key status = %d", w.Code)
	}
	if w = s.do(t, http.MethodPost, "/api/check-in", "", map[string]string{"rfid": "RFID001", "apiKey": rotated.APIKey}); w.Code != http.StatusOK {
		t.Fatalf("new key status = %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/v1/device-key", token, nil)
	var status map[string]any
	decode(t, w, &status)
	if status["configured"] != true {
		t.Fatalf("status = %v", status)
	}
	if _, leaked := status["api_key"]; leaked {
		t.Fatal("key status exposes the key")
	}
}

func TestSeedEndpoint(t *testing.T) {
	s := newTestServer(t, attendance.NewMemoryStore())
	token := s.login(t)

	want := []string{"Initial student data seeded successfully.", "Students collection already contains data."}
	for _, msg := range want {
		w := s.do(t, http.MethodPost, "/api/seed", token, nil)
		var resp deviceResponse
		decode(t, w, &resp)
		if w.Code != http.StatusOK || resp.Message != msg {
			t.Fatalf("seed = %d %+v, want %q", w.Code, resp, msg)
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do(t, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	s.deps.HealthChecks["redis"] = func(context.Context) error { return errors.New("dial tcp: refused") }
	r := NewRouter(s.deps)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, w, &body)
	if body.Status != "degraded" || body.Checks["store"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}
