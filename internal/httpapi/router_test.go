package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docconv/internal/httpapi/handlers"
	"docconv/internal/ports"
	"docconv/internal/worker/ledger"
)

type fakeStore struct {
	pingErr error
}

func (s fakeStore) Provider() string { return "fake" }

func (s fakeStore) PutObject(context.Context, ports.PutObjectInput) (ports.PutObjectOutput, error) {
	return ports.PutObjectOutput{}, nil
}

func (s fakeStore) GetObject(context.Context, string) (io.ReadCloser, string, int64, error) {
	return nil, "", 0, ports.ErrObjectNotFound
}

func (s fakeStore) DeleteObject(context.Context, string) error { return nil }

func (s fakeStore) Ping(context.Context) error { return s.pingErr }

type fakeBroker struct{ err error }

func (b fakeBroker) Ping(context.Context) error { return b.err }

type fakeJobs struct {
	records map[string]ledger.Record
	status  string
	limit   int
	err     error
}

func (f *fakeJobs) Get(_ context.Context, uuid string) (ledger.Record, error) {
	if f.err != nil {
		return ledger.Record{}, f.err
	}
	r, ok := f.records[uuid]
	if !ok {
		return ledger.Record{}, ledger.ErrJobNotFound
	}
	return r, nil
}

func (f *fakeJobs) List(_ context.Context, status string, limit int) ([]ledger.Record, error) {
	f.status, f.limit = status, limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ledger.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func serve(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	r := NewRouter(Deps{Handlers: handlers.Deps{SP: fakeStore{}, Broker: fakeBroker{}}})

	rec, body := serve(t, r, "/health")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected response %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if _, ok := body["checks"]; ok {
		t.Error("shallow health must not run checks")
	}
}

func TestDeepHealth(t *testing.T) {
	t.Run("all reachable", func(t *testing.T) {
		r := NewRouter(Deps{Handlers: handlers.Deps{SP: fakeStore{}, Broker: fakeBroker{}}})

		rec, body := serve(t, r, "/health?deep=true")
		if rec.Code != http.StatusOK || body["status"] != "ok" {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
		checks := body["checks"].(map[string]any)
		if checks["postgres"].(map[string]any)["status"] != "disabled" {
			t.Errorf("postgres without a pool must be disabled: %v", checks["postgres"])
		}
		storage := checks["storage"].(map[string]any)
		if storage["status"] != "ok" || storage["provider"] != "fake" {
			t.Errorf("unexpected storage check %v", storage)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		r := NewRouter(Deps{Handlers: handlers.Deps{
			SP:     fakeStore{pingErr: errors.New("bucket missing")},
			Broker: fakeBroker{},
		}})

		rec, body := serve(t, r, "/health?deep=true")
		if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
			t.Fatalf("unexpected response %d %v", rec.Code, body)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("docconv_jobs_total 0\n"))
	})
	r := NewRouter(Deps{Metrics: metrics})

	rec, _ := serve(t, r, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "docconv_jobs_total") {
		t.Errorf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestJobs(t *testing.T) {
	jobs := &fakeJobs{records: map[string]ledger.Record{
		"a1": {UUID: "a1", Status: "DONE", ObjectKey: "a1/report.pdf", CreatedAt: time.Unix(0, 0).UTC()},
	}}
	r := NewRouter(Deps{Handlers: handlers.Deps{Jobs: jobs}})

	rec, body := serve(t, r, "/jobs/a1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	job := body["job"].(map[string]any)
	if job["object_key"] != "a1/report.pdf" || job["status"] != "DONE" {
		t.Errorf("unexpected job %v", job)
	}

	rec, body = serve(t, r, "/jobs/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["error"].(map[string]any)["code"] != "JOB_NOT_FOUND" {
		t.Errorf("unexpected error body %v", body)
	}

	rec, _ = serve(t, r, "/jobs?status=failed&limit=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if jobs.status != "FAILED" || jobs.limit != 50 {
		t.Errorf("status=%q limit=%d", jobs.status, jobs.limit)
	}
}

func TestJobsLedgerErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   string
		wantCode int
		wantErr  string
	}{
		{"list query fails", errors.New("conn reset"), "/jobs", 500, "INTERNAL_ERROR"},
		{"get query fails", errors.New("conn reset"), "/jobs/a1", 500, "INTERNAL_ERROR"},
		{"get times out", context.DeadlineExceeded, "/jobs/a1", 504, "TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(Deps{Handlers: handlers.Deps{Jobs: &fakeJobs{err: tt.err}}})

			rec, body := serve(t, r, tt.target)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			e := body["error"].(map[string]any)
			if e["code"] != tt.wantErr || e["message"] != "ledger query failed" {
				t.Errorf("unexpected error body %v", e)
			}
		})
	}
}

func TestJobsRoutesRequireLedger(t *testing.T) {
	r := NewRouter(Deps{})

	rec, _ := serve(t, r, "/jobs/a1")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a ledger", rec.Code)
	}
}
