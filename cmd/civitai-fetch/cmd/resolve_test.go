package cmd

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/catalog"
	"go-civitai-fetch/internal/resolver"
)

// newOfflineResolver builds a resolver whose API lookups all come back
// 404, so canonical URLs pass through untouched and identity recovery
// degrades to its fallbacks without real network access.
func newOfflineResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	client := api.NewClient("", &http.Client{Timeout: 5 * time.Second})
	client.BaseUrl = server.URL
	client.RetryDelay = time.Millisecond
	return resolver.New(client)
}

func TestResolveCatalogDirConvertsTextLists(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "wanted.txt")
	line := "https://civitai.com/api/download/models/123"
	if err := os.WriteFile(listPath, []byte(line+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := resolveCatalogDir(newOfflineResolver(t), dir); err != nil {
		t.Fatal(err)
	}

	rows, err := catalog.ReadFile(filepath.Join(dir, "wanted.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].URL != line {
		t.Errorf("URL = %q, want %q", rows[0].URL, line)
	}
}

func TestResolveCatalogDirProcessesMixedFiles(t *testing.T) {
	dir := t.TempDir()
	csvRows := []catalog.Row{{SrNo: "1", ModelID: "10", Name: "Already Canonical", URL: "https://civitai.com/api/download/models/55"}}
	if err := catalog.WriteFile(filepath.Join(dir, "main.csv"), csvRows); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("https://civitai.com/api/download/models/77\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// The starter template must never be treated as a catalog.
	if err := catalog.WriteFile(filepath.Join(dir, templateFileName), csvRows); err != nil {
		t.Fatal(err)
	}
	templateBefore, err := os.ReadFile(filepath.Join(dir, templateFileName))
	if err != nil {
		t.Fatal(err)
	}

	if err := resolveCatalogDir(newOfflineResolver(t), dir); err != nil {
		t.Fatal(err)
	}

	rows, err := catalog.ReadFile(filepath.Join(dir, "main.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].URL != "https://civitai.com/api/download/models/55" {
		t.Errorf("main.csv rows = %+v", rows)
	}

	converted, err := catalog.ReadFile(filepath.Join(dir, "extra.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(converted) != 1 || converted[0].URL != "https://civitai.com/api/download/models/77" {
		t.Errorf("extra.csv rows = %+v", converted)
	}

	templateAfter, err := os.ReadFile(filepath.Join(dir, templateFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(templateAfter) != string(templateBefore) {
		t.Error("template catalog was modified by directory processing")
	}
}
