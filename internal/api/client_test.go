package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient("secret-key", srv.Client())
	client.BaseUrl = srv.URL
	client.RetryDelay = 0
	return client, srv
}

func TestGetModelByID(t *testing.T) {
	var gotPath, gotAuth string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"id":42,"name":"Test Model","type":"LORA"}`)
	})
	defer srv.Close()

	model, err := client.GetModelByID(42)
	if err != nil {
		t.Fatal(err)
	}
	if model.ID != 42 || model.Name != "Test Model" || model.Type != "LORA" {
		t.Errorf("model = %+v", model)
	}
	if gotPath != "/models/42" {
		t.Errorf("path = %q, want /models/42", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestAnonymousRequestsOmitAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"id":1}`)
	}))
	defer srv.Close()

	client := NewClient("", srv.Client())
	client.BaseUrl = srv.URL

	if _, err := client.GetModelByID(1); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("auth header = %q, want empty for anonymous requests", gotAuth)
	}
}

func TestGetModelVersionByID(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model-versions/99" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"id":99,"modelId":42,"downloadUrl":"https://civitai.com/api/download/models/99"}`)
	})
	defer srv.Close()

	version, err := client.GetModelVersionByID(99)
	if err != nil {
		t.Fatal(err)
	}
	if version.ID != 99 || version.ModelId != 42 {
		t.Errorf("version = %+v", version)
	}
}

func TestTypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int64
			client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			})
			defer srv.Close()

			_, err := client.GetModelByID(1)
			if !errors.Is(err, tt.expected) {
				t.Errorf("err = %v, want %v", err, tt.expected)
			}
			if attempts.Load() != 1 {
				t.Errorf("attempts = %d, want 1 (terminal statuses are not retried)", attempts.Load())
			}
		})
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var attempts atomic.Int64
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"id":7}`)
	})
	defer srv.Close()

	model, err := client.GetModelByID(7)
	if err != nil {
		t.Fatal(err)
	}
	if model.ID != 7 {
		t.Errorf("model = %+v", model)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestPersistentServerErrorExhaustsRetries(t *testing.T) {
	var attempts atomic.Int64
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.GetModelByID(1)
	if !errors.Is(err, ErrServerError) {
		t.Errorf("err = %v, want ErrServerError", err)
	}
	if attempts.Load() != maxRetries {
		t.Errorf("attempts = %d, want %d", attempts.Load(), maxRetries)
	}
}

func TestSearchModelsByName(t *testing.T) {
	var gotQuery, gotTypes, gotLimit string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotTypes = r.URL.Query().Get("types")
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"items":[{"id":1,"name":"Found"}],"metadata":{"totalItems":1}}`)
	})
	defer srv.Close()

	results, err := client.SearchModelsByName("some model", "lora")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Name != "Found" {
		t.Errorf("results = %+v", results)
	}
	if gotQuery != "some model" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotTypes != "LORA" {
		t.Errorf("types = %q, want LORA (internal tag mapped to API vocabulary)", gotTypes)
	}
	if gotLimit != "10" {
		t.Errorf("limit = %q, want 10", gotLimit)
	}
}

func TestSearchUnknownTypeOmitsFilter(t *testing.T) {
	var hasTypes bool
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		hasTypes = r.URL.Query().Has("types")
		fmt.Fprint(w, `{"items":[],"metadata":{}}`)
	})
	defer srv.Close()

	if _, err := client.SearchModelsByName("q", "no-such-type"); err != nil {
		t.Fatal(err)
	}
	if hasTypes {
		t.Error("unknown model type must not produce a types filter")
	}
}

func TestDownloadURLForVersion(t *testing.T) {
	got := DownloadURLForVersion(555)
	want := "https://civitai.com/api/download/models/555"
	if got != want {
		t.Errorf("DownloadURLForVersion(555) = %q, want %q", got, want)
	}
}
