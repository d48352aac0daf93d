package catalog

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-civitai-fetch/internal/api"
	"go-civitai-fetch/internal/resolver"
)

func newTestDriver(t *testing.T, routes map[string]string) *resolver.Resolver {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := routes[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	client := api.NewClient("", srv.Client())
	client.BaseUrl = srv.URL
	client.RetryDelay = 0
	return resolver.New(client)
}

func TestResolveRowsFillsURLs(t *testing.T) {
	res := newTestDriver(t, map[string]string{
		"/models/42": `{"id":42,"modelVersions":[{"id":99,"downloadUrl":"https://civitai.com/api/download/models/99"}]}`,
	})

	rows := []Row{
		{SrNo: "1", ModelID: "42", Name: "Model A", URL: "42"},
		{SrNo: "2", ModelID: "", Name: "Canonical", URL: "https://civitai.com/api/download/models/7"},
	}

	out, outcomes, summary := ResolveRows(res, rows)

	if summary.Total != 2 || summary.Resolved != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if out[0].URL != "https://civitai.com/api/download/models/99" {
		t.Errorf("row 0 URL = %q", out[0].URL)
	}
	if out[1].URL != "https://civitai.com/api/download/models/7" {
		t.Errorf("row 1 URL = %q (canonical URLs pass through)", out[1].URL)
	}
	for i, outcome := range outcomes {
		if !outcome.Success {
			t.Errorf("outcome %d failed: %s", i, outcome.Message)
		}
	}
	// Input must stay untouched.
	if rows[0].URL != "42" {
		t.Errorf("input mutated: %q", rows[0].URL)
	}
}

func TestResolveRowsFailedRowKeepsURL(t *testing.T) {
	res := newTestDriver(t, map[string]string{
		"/models": `{"items":[],"metadata":{}}`,
	})

	rows := []Row{{SrNo: "1", ModelID: "", Name: "Some Model", URL: ""}}
	out, outcomes, summary := ResolveRows(res, rows)

	if summary.Total != 1 || summary.Failed != 1 || summary.Resolved != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if out[0].URL != "" {
		t.Errorf("failed row URL = %q, want unchanged empty", out[0].URL)
	}
	if outcomes[0].Success {
		t.Error("outcome should be a failure")
	}
}

func TestResolveRowsOutcomesMatchRowOrder(t *testing.T) {
	res := newTestDriver(t, map[string]string{
		"/models/1": `{"id":1,"modelVersions":[{"id":11,"downloadUrl":"https://civitai.com/api/download/models/11"}]}`,
	})

	rows := []Row{
		{SrNo: "1", Name: "ok", URL: "1"},
		{SrNo: "2", Name: "missing", URL: "2"},
		{SrNo: "3", Name: "ok again", URL: "1"},
	}
	_, outcomes, summary := ResolveRows(res, rows)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !outcomes[0].Success || outcomes[1].Success || !outcomes[2].Success {
		t.Errorf("outcome order wrong: %+v", outcomes)
	}
	if summary.Resolved != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSummarySuccessRate(t *testing.T) {
	if rate := (Summary{}).SuccessRate(); rate != 0 {
		t.Errorf("empty success rate = %f, want 0", rate)
	}
	if rate := (Summary{Total: 4, Resolved: 3, Failed: 1}).SuccessRate(); rate != 75 {
		t.Errorf("success rate = %f, want 75", rate)
	}
}

func TestLinesToRows(t *testing.T) {
	res := newTestDriver(t, map[string]string{
		"/models/42":         `{"id":42,"name":"The Answer","modelVersions":[{"id":99,"downloadUrl":"https://civitai.com/api/download/models/99"}]}`,
		"/model-versions/99": `{"id":99,"modelId":42}`,
		"/models":            `{"items":[],"metadata":{}}`,
	})

	lines := []string{
		"42",
		"",
		"   ",
		"Unfindable Model Name",
	}
	rows, summary := LinesToRows(res, lines)

	if summary.Total != 2 {
		t.Fatalf("blank lines must be skipped, total = %d", summary.Total)
	}
	if summary.Resolved != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0].SrNo != "1" || rows[0].ModelID != "42" || rows[0].URL != "https://civitai.com/api/download/models/99" {
		t.Errorf("resolved row = %+v", rows[0])
	}
	// "42" is not name-like, so the display name comes from the model record.
	if rows[0].Name != "The Answer" {
		t.Errorf("recovered name = %q, want %q", rows[0].Name, "The Answer")
	}

	// Failed lines keep the original text in both columns for review.
	if rows[1].ModelID != "Failed" || rows[1].Name != "Unfindable Model Name" || rows[1].URL != "Unfindable Model Name" {
		t.Errorf("failed row = %+v", rows[1])
	}
}

func TestLinesToRowsNameLikeInputKeepsName(t *testing.T) {
	res := newTestDriver(t, map[string]string{
		"/models": `{"items":[{"id":5,"name":"Nice Model","modelVersions":[
			{"id":50,"downloadUrl":"https://civitai.com/api/download/models/50"}]}],"metadata":{}}`,
		"/model-versions/50": `{"id":50,"modelId":5}`,
	})

	rows, summary := LinesToRows(res, []string{"Nice Model"})
	if summary.Resolved != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	// The input already reads as a name, so it wins over the API record.
	if rows[0].Name != "Nice Model" {
		t.Errorf("name = %q, want input preserved", rows[0].Name)
	}
	if rows[0].ModelID != "5" {
		t.Errorf("model ID = %q, want 5", rows[0].ModelID)
	}
}
