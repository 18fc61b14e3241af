package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"challenge-api/domain"
)

type completionKey struct {
	day    int
	taskID int64
}

// memStore is an in-memory Storage with the same observable rules as the sqlite store.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	tasks       []domain.Task
	completions map[completionKey]bool
	notes       map[int]string
	err         error
	pingErr     error
}

func newMemStore() *memStore {
	return &memStore{completions: map[completionKey]bool{}, notes: map[int]string{}}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) ListTasks(context.Context) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := append([]domain.Task{}, m.tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) AddTask(_ context.Context, name string) (domain.Task, error) {
	name, err := domain.NormalizeTaskName(name)
	if err != nil {
		return domain.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Task{}, m.err
	}
	maxOrder := 0
	for _, t := range m.tasks {
		if t.Order > maxOrder {
			maxOrder = t.Order
		}
	}
	m.nextID++
	task := domain.Task{ID: m.nextID, Name: name, Order: maxOrder + 1}
	m.tasks = append(m.tasks, task)
	return task, nil
}

func (m *memStore) RenameTask(_ context.Context, id int64, name string) error {
	name, err := domain.NormalizeTaskName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Name = name
		}
	}
	return m.err
}

func (m *memStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	m.tasks = kept
	for k := range m.completions {
		if k.taskID == id {
			delete(m.completions, k)
		}
	}
	return nil
}

func (m *memStore) GetDay(ctx context.Context, day int) (domain.DayView, error) {
	tasks, err := m.ListTasks(ctx)
	if err != nil {
		return domain.DayView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	done := map[int64]bool{}
	for k, v := range m.completions {
		if k.day == day && v {
			done[k.taskID] = true
		}
	}
	return domain.BuildDayView(tasks, done, m.notes[day]), nil
}

func (m *memStore) ToggleTask(_ context.Context, day int, taskID int64, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.completions[completionKey{day: day, taskID: taskID}] = completed
	return nil
}

func (m *memStore) SetNotes(_ context.Context, day int, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notes[day] = notes
	return nil
}

func (m *memStore) Summary(context.Context) (domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	byDay := map[int]int{}
	for k, v := range m.completions {
		if v {
			byDay[k.day]++
		}
	}
	return domain.BuildSummary(byDay, len(m.tasks)), nil
}

func (m *memStore) Stats(context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Stats{}, m.err
	}
	byDay := map[int]int{}
	for k, v := range m.completions {
		if v {
			byDay[k.day]++
		}
	}
	return domain.BuildStats(domain.CountCompletedDays(byDay, len(m.tasks))), nil
}

func newTestServer(t *testing.T, store Storage) (*echo.Echo, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	e := echo.New()
	Register(e, store, logger)
	return e, hook
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()

	if err := sonic.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
}

func TestListTasksEmpty(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	rec := doRequest(e, http.MethodGet, "/api/tasks-list", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestAddTaskThenList(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	rec := doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"  Read  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var added addTaskResponse
	decodeJSON(t, rec, &added)
	if !added.Success || added.ID != 1 || added.TaskName != "Read" || added.TaskOrder != 1 {
		t.Fatalf("unexpected response: %+v", added)
	}

	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Walk"}`)
	rec = doRequest(e, http.MethodGet, "/api/tasks-list", "")
	var tasks []map[string]interface{}
	decodeJSON(t, rec, &tasks)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %v", tasks)
	}
	if tasks[1]["task_name"] != "Walk" || tasks[1]["task_order"] != float64(2) {
		t.Fatalf("unexpected second task: %v", tasks[1])
	}
	for _, key := range []string{"id", "task_name", "task_order"} {
		if _, ok := tasks[0][key]; !ok {
			t.Fatalf("missing %s in %v", key, tasks[0])
		}
	}
}

func TestAddTaskRejectsBlankName(t *testing.T) {
	store := newMemStore()
	e, _ := newTestServer(t, store)

	for _, body := range []string{`{"task_name":"   "}`, `{}`} {
		rec := doRequest(e, http.MethodPost, "/api/tasks-list", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
		var resp errorResponse
		decodeJSON(t, rec, &resp)
		if resp.Error != "task_name is required" {
			t.Fatalf("unexpected error message: %q", resp.Error)
		}
	}
	if len(store.tasks) != 0 {
		t.Fatalf("invalid tasks must not be stored")
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	cases := []struct{ method, target, body string }{
		{http.MethodPost, "/api/tasks-list", `{"task_name":`},
		{http.MethodPut, "/api/tasks-list/1", `not json`},
		{http.MethodPost, "/api/days/1/task/1", `{"completed":tru}`},
		{http.MethodPost, "/api/days/1/notes", `[`},
	}
	for _, tc := range cases {
		rec := doRequest(e, tc.method, tc.target, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400 got %d", tc.method, tc.target, rec.Code)
		}
		var resp errorResponse
		decodeJSON(t, rec, &resp)
		if resp.Error == "" {
			t.Fatalf("%s %s: expected error message", tc.method, tc.target)
		}
	}
}

func TestRenameAndDeleteTask(t *testing.T) {
	store := newMemStore()
	e, _ := newTestServer(t, store)
	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Read"}`)

	rec := doRequest(e, http.MethodPut, "/api/tasks-list/1", `{"task_name":"Read more"}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected rename response %d %s", rec.Code, rec.Body.String())
	}
	if store.tasks[0].Name != "Read more" {
		t.Fatalf("rename not applied: %+v", store.tasks)
	}

	rec = doRequest(e, http.MethodPut, "/api/tasks-list/1", `{"task_name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank rename, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPut, "/api/tasks-list/42", `{"task_name":"Ghost"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("renaming an unknown task should succeed, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodDelete, "/api/tasks-list/1", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected delete response %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodDelete, "/api/tasks-list/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("deleting twice should succeed, got %d", rec.Code)
	}
	if len(store.tasks) != 0 {
		t.Fatalf("task not deleted: %+v", store.tasks)
	}
}

func TestNonNumericPathIsNotFound(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	cases := []struct{ method, target, body string }{
		{http.MethodPut, "/api/tasks-list/abc", `{"task_name":"x"}`},
		{http.MethodDelete, "/api/tasks-list/-1", ""},
		{http.MethodGet, "/api/days/first", ""},
		{http.MethodPost, "/api/days/1/task/x", `{"completed":true}`},
		{http.MethodPost, "/api/days/x/notes", `{"notes":"n"}`},
	}
	for _, tc := range cases {
		rec := doRequest(e, tc.method, tc.target, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404 got %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestToggleAndGetDay(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())
	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Read"}`)
	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Walk"}`)

	rec := doRequest(e, http.MethodPost, "/api/days/5/task/2", `{"completed":true}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected toggle response %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodPost, "/api/days/5/notes", `{"notes":"good day"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected notes status %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/days/5", "")
	var view domain.DayView
	decodeJSON(t, rec, &view)
	if len(view.Tasks) != 2 || view.Tasks[0].Completed || !view.Tasks[1].Completed {
		t.Fatalf("unexpected day view: %+v", view)
	}
	if view.Notes != "good day" {
		t.Fatalf("unexpected notes: %q", view.Notes)
	}

	doRequest(e, http.MethodPost, "/api/days/5/task/2", `{}`)
	rec = doRequest(e, http.MethodGet, "/api/days/5", "")
	decodeJSON(t, rec, &view)
	if view.Tasks[1].Completed {
		t.Fatalf("missing completed flag should mean false: %+v", view)
	}
}

func TestToggleAcceptsTruthyValues(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{body: `{"completed":true}`, want: true},
		{body: `{"completed":false}`, want: false},
		{body: `{"completed":1}`, want: true},
		{body: `{"completed":0}`, want: false},
		{body: `{"completed":0.5}`, want: true},
		{body: `{"completed":"yes"}`, want: true},
		{body: `{"completed":""}`, want: false},
		{body: `{"completed":null}`, want: false},
		{body: `{"completed":[]}`, want: false},
		{body: `{"completed":[0]}`, want: true},
		{body: `{"completed":{}}`, want: false},
		{body: `{"completed":{"a":1}}`, want: true},
		{body: `{}`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			e, _ := newTestServer(t, newMemStore())
			doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Read"}`)

			rec := doRequest(e, http.MethodPost, "/api/days/3/task/1", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected toggle status %d: %s", rec.Code, rec.Body.String())
			}
			var view domain.DayView
			decodeJSON(t, doRequest(e, http.MethodGet, "/api/days/3", ""), &view)
			if len(view.Tasks) != 1 || view.Tasks[0].Completed != tt.want {
				t.Fatalf("expected completed=%v, got %+v", tt.want, view.Tasks)
			}
		})
	}
}

func TestDaysSummaryRouteIsNotADay(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())
	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Read"}`)
	doRequest(e, http.MethodPost, "/api/days/5/task/1", `{"completed":true}`)

	rec := doRequest(e, http.MethodGet, "/api/days/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var summary map[string]domain.DayProgress
	decodeJSON(t, rec, &summary)
	if len(summary) != domain.ChallengeDays {
		t.Fatalf("expected %d days, got %d", domain.ChallengeDays, len(summary))
	}
	if summary["5"] != (domain.DayProgress{Completed: 1, Total: 1}) {
		t.Fatalf("unexpected day 5: %+v", summary["5"])
	}
	if summary["6"] != (domain.DayProgress{Completed: 0, Total: 1}) {
		t.Fatalf("unexpected day 6: %+v", summary["6"])
	}
}

func TestStatsScenarios(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	rec := doRequest(e, http.MethodGet, "/api/stats", "")
	var raw map[string]interface{}
	decodeJSON(t, rec, &raw)
	want := map[string]float64{"completed_days": 0, "total_days": 100, "remaining": 100, "percentage": 0}
	for k, v := range want {
		if raw[k] != v {
			t.Fatalf("empty stats: %s = %v, want %v", k, raw[k], v)
		}
	}

	doRequest(e, http.MethodPost, "/api/tasks-list", `{"task_name":"Read"}`)
	doRequest(e, http.MethodPost, "/api/days/5/task/1", `{"completed":true}`)
	rec = doRequest(e, http.MethodGet, "/api/stats", "")
	var st domain.Stats
	decodeJSON(t, rec, &st)
	if st != (domain.Stats{CompletedDays: 1, TotalDays: 100, Remaining: 99, Percentage: 1.0}) {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestStorageFailureIsInternalError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk on fire")
	e, hook := newTestServer(t, store)

	rec := doRequest(e, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("storage error leaked to client: %s", rec.Body.String())
	}

	var failure, request *log.Entry
	for i := range hook.AllEntries() {
		entry := hook.AllEntries()[i]
		switch entry.Message {
		case "storage operation failed":
			failure = entry
		case requestEventName:
			request = entry
		}
	}
	if failure == nil {
		t.Fatalf("expected storage failure to be logged")
	}
	if logged, ok := failure.Data[log.ErrorKey].(error); !ok || !errors.Is(logged, store.err) {
		t.Fatalf("expected full error in log, got %v", failure.Data[log.ErrorKey])
	}
	if request == nil || request.Level != log.ErrorLevel || request.Data["error_stage"] != "storage" {
		t.Fatalf("unexpected request entry: %+v", request)
	}
}

func TestRequestLogCarriesRoute(t *testing.T) {
	e, hook := newTestServer(t, newMemStore())

	doRequest(e, http.MethodGet, "/api/days/12", "")

	entry := hook.LastEntry()
	if entry == nil || entry.Message != requestEventName {
		t.Fatalf("expected request log entry, got %+v", entry)
	}
	if entry.Data["route"] != "/api/days/:day" || entry.Data["status"] != http.StatusOK {
		t.Fatalf("unexpected fields: %v", entry.Data)
	}
}

func TestHealthz(t *testing.T) {
	store := newMemStore()
	e, _ := newTestServer(t, store)

	if rec := doRequest(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	store.pingErr = errors.New("sql: database is closed")
	rec := doRequest(e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "database is closed") {
		t.Fatalf("ping error leaked to client: %s", rec.Body.String())
	}
}

func TestIndexServesCalendar(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	rec := doRequest(e, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "100 Day Challenge") {
		t.Fatalf("unexpected index body: %s", rec.Body.String())
	}

	for _, marker := range []string{`id="day-dialog"`, `id="save-day"`, `class="week-header"`} {
		if !strings.Contains(rec.Body.String(), marker) {
			t.Fatalf("index is missing %s", marker)
		}
	}

	rec = doRequest(e, http.MethodGet, "/static/app.js", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected app script, got %d", rec.Code)
	}
	script := rec.Body.String()
	for _, marker := range []string{"/api/days/summary", "week-row", "dateOfDay", "/notes", "today"} {
		if !strings.Contains(script, marker) {
			t.Fatalf("app script is missing %s", marker)
		}
	}
}

func TestUnknownRouteRendersJSONError(t *testing.T) {
	e, _ := newTestServer(t, newMemStore())

	rec := doRequest(e, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	var resp errorResponse
	decodeJSON(t, rec, &resp)
	if resp.Error != http.StatusText(http.StatusNotFound) {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}
