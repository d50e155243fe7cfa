package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/store"
)

func sampleInterview(id int64, risk float64) store.InterviewDetail {
	return store.InterviewDetail{
		Interview: followup.Interview{
			ID:         id,
			EmployeeID: "emp-1",
			Transcript: "agent: hola\nuser: me voy por el salario",
			Insight:    analysis.InsightRecord{RetentionRisk: risk, PrimaryReason: "salario"},
			CreatedAt:  testNow,
		},
		EmployeeName: "Marta Ruiz",
		Department:   "Ventas",
	}
}

func TestListInterviewsFilters(t *testing.T) {
	env := newTestEnv(t, "")
	env.interviews.list = []store.InterviewDetail{sampleInterview(1, 0.8)}

	rec := serve(t, env, http.MethodGet, "/admin/interviews?department=Ventas&min_risk=0.5&q=salario&limit=10&offset=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body struct {
		Interviews []store.InterviewDetail `json:"interviews"`
		Count      int                     `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Interviews) != 1 {
		t.Fatalf("body = %+v, want one interview", body)
	}
	if got := body.Interviews[0]; got.Department != "Ventas" || got.Insight.PrimaryReason != "salario" {
		t.Errorf("interview = %+v", got)
	}

	want := store.InterviewFilter{Department: "Ventas", MinRisk: 0.5, Search: "salario", Limit: 10, Offset: 20}
	if len(env.interviews.filters) != 1 || env.interviews.filters[0] != want {
		t.Errorf("filters = %+v, want %+v", env.interviews.filters, want)
	}
}

func TestListInterviewsEmpty(t *testing.T) {
	env := newTestEnv(t, "")
	rec := serve(t, env, http.MethodGet, "/admin/interviews", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"interviews":[]`) {
		t.Errorf("body = %s, want an empty list", rec.Body.String())
	}
	if env.interviews.filters[0] != (store.InterviewFilter{}) {
		t.Errorf("filter = %+v, want zero value", env.interviews.filters[0])
	}
}

func TestListInterviewsRejectsBadQuery(t *testing.T) {
	tests := map[string]string{
		"risk above one":  "/admin/interviews?min_risk=1.5",
		"risk not number": "/admin/interviews?min_risk=alto",
		"zero limit":      "/admin/interviews?limit=0",
		"limit too large": "/admin/interviews?limit=1000",
		"negative offset": "/admin/interviews?offset=-1",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, "")
			rec := serve(t, env, http.MethodGet, target, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if len(env.interviews.filters) != 0 {
				t.Error("store must not be queried for a bad query")
			}
		})
	}
}

func TestHighRiskInterviews(t *testing.T) {
	env := newTestEnv(t, "")
	if rec := serve(t, env, http.MethodGet, "/admin/interviews/high-risk", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if f := env.interviews.filters[0]; f.MinRisk != highRiskThreshold || !f.SortByRisk {
		t.Errorf("filter = %+v, want min risk %v sorted by risk", f, highRiskThreshold)
	}

	if rec := serve(t, env, http.MethodGet, "/admin/interviews/high-risk?min_risk=0.9", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if f := env.interviews.filters[1]; f.MinRisk != 0.9 {
		t.Errorf("min risk = %v, want 0.9", f.MinRisk)
	}
}

func TestGetInterview(t *testing.T) {
	env := newTestEnv(t, "")
	iv := sampleInterview(42, 0.75)
	env.interviews.byID = map[int64]*store.InterviewDetail{42: &iv}

	rec := serve(t, env, http.MethodGet, "/admin/interviews/42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got store.InterviewDetail
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 42 || got.Transcript != iv.Transcript || got.Insight.RetentionRisk != 0.75 {
		t.Errorf("interview = %+v", got)
	}

	if rec := serve(t, env, http.MethodGet, "/admin/interviews/7", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := serve(t, env, http.MethodGet, "/admin/interviews/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestInterviewsStoreError(t *testing.T) {
	env := newTestEnv(t, "")
	env.interviews.err = errors.New("connection refused")

	for _, target := range []string{"/admin/interviews", "/admin/interviews/1"} {
		if rec := serve(t, env, http.MethodGet, target, ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, http.StatusInternalServerError)
		}
	}
}

func TestInterviewsRequireAdmin(t *testing.T) {
	env := newTestEnv(t, "")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/interviews", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
