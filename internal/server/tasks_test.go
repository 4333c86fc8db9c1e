package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/communitysignals/scout/internal/runtime"
	"github.com/communitysignals/scout/internal/store"
)

var testSecret = []byte("test-secret")

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := runtime.SignJWT("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

// stubTaskStore is an in-memory TaskStore for handler tests.
type stubTaskStore struct {
	tasks  map[string]store.Task
	bySrc  map[string]string
	nextID int
}

func newStubTaskStore() *stubTaskStore {
	return &stubTaskStore{tasks: map[string]store.Task{}, bySrc: map[string]string{}}
}

func (s *stubTaskStore) CreateTask(ctx context.Context, t *store.Task) (bool, error) {
	if _, ok := s.bySrc[t.SourceURL]; ok {
		return false, nil
	}
	s.nextID++
	t.ID = strings.Repeat("0", 3) + string(rune('0'+s.nextID))
	s.tasks[t.ID] = *t
	s.bySrc[t.SourceURL] = t.ID
	return true, nil
}

func (s *stubTaskStore) GetTask(ctx context.Context, id string) (store.Task, bool, error) {
	t, ok := s.tasks[id]
	return t, ok, nil
}

func (s *stubTaskStore) ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	var out []store.Task
	for _, t := range s.tasks {
		if f.Platform != "" && t.Platform != f.Platform {
			continue
		}
		if f.Completed != nil && t.IsCompleted != *f.Completed {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *stubTaskStore) SetTaskCompleted(ctx context.Context, id string, completed bool) (bool, error) {
	t, ok := s.tasks[id]
	if !ok {
		return false, nil
	}
	t.IsCompleted = completed
	s.tasks[id] = t
	return true, nil
}

func (s *stubTaskStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func newTasksAPI(st TaskStore) *echo.Echo {
	e := echo.New()
	h := &TasksHandler{Store: st}
	h.Register(e.Group("/api/tasks"), testSecret)
	return e
}

func doJSON(e *echo.Echo, method, path, auth string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTasksRequireAuth(t *testing.T) {
	e := newTasksAPI(newStubTaskStore())
	rec := doJSON(e, http.MethodGet, "/api/tasks", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	e := newTasksAPI(newStubTaskStore())
	auth := bearer(t)

	rec := doJSON(e, http.MethodPost, "/api/tasks", auth,
		`{"title": "answer thread", "source_url": "https://x/1", "platform": "reddit", "priority": 2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created store.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(e, http.MethodGet, "/api/tasks/"+created.ID, auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get code = %d", rec.Code)
	}
}

func TestCreateDuplicateTaskConflicts(t *testing.T) {
	e := newTasksAPI(newStubTaskStore())
	auth := bearer(t)
	body := `{"title": "t", "source_url": "https://x/1"}`

	if rec := doJSON(e, http.MethodPost, "/api/tasks", auth, body); rec.Code != http.StatusCreated {
		t.Fatalf("first create = %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/api/tasks", auth, body); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", rec.Code)
	}
}

func TestCreateTaskRequiresSourceURL(t *testing.T) {
	e := newTasksAPI(newStubTaskStore())
	rec := doJSON(e, http.MethodPost, "/api/tasks", bearer(t), `{"title": "no url"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestCompleteTask(t *testing.T) {
	st := newStubTaskStore()
	e := newTasksAPI(st)
	auth := bearer(t)

	rec := doJSON(e, http.MethodPost, "/api/tasks", auth, `{"title": "t", "source_url": "https://x/1"}`)
	var created store.Task
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(e, http.MethodPatch, "/api/tasks/"+created.ID, auth, `{"is_completed": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch code = %d", rec.Code)
	}
	if got := st.tasks[created.ID]; !got.IsCompleted {
		t.Error("task not marked completed")
	}

	rec = doJSON(e, http.MethodPatch, "/api/tasks/unknown", auth, `{"is_completed": true}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("patch unknown = %d, want 404", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	st := newStubTaskStore()
	e := newTasksAPI(st)
	auth := bearer(t)

	rec := doJSON(e, http.MethodPost, "/api/tasks", auth, `{"title": "t", "source_url": "https://x/1"}`)
	var created store.Task
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	if rec := doJSON(e, http.MethodDelete, "/api/tasks/"+created.ID, auth, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete code = %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodDelete, "/api/tasks/"+created.ID, auth, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete code = %d, want 404", rec.Code)
	}
}

func TestListTasksFilters(t *testing.T) {
	st := newStubTaskStore()
	e := newTasksAPI(st)
	auth := bearer(t)

	doJSON(e, http.MethodPost, "/api/tasks", auth, `{"title": "a", "source_url": "https://x/1", "platform": "reddit"}`)
	doJSON(e, http.MethodPost, "/api/tasks", auth, `{"title": "b", "source_url": "https://x/2", "platform": "discord"}`)

	rec := doJSON(e, http.MethodGet, "/api/tasks?platform=reddit", auth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list code = %d", rec.Code)
	}
	var tasks []store.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Platform != "reddit" {
		t.Fatalf("filtered tasks = %+v", tasks)
	}

	if rec := doJSON(e, http.MethodGet, "/api/tasks?completed=notabool", auth, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter code = %d, want 400", rec.Code)
	}
}
