package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const searchPageJSON = `{
  "found": 3,
  "pages": 2,
  "page": 0,
  "per_page": 2,
  "items": [
    {
      "id": "101",
      "name": " Data Analyst ",
      "alternate_url": "https://hh.ru/vacancy/101",
      "area": {"id": "1", "name": "Moscow"},
      "employer": {"id": "e1", "name": "Acme", "logo_urls": {"90": "x"}},
      "salary": {"from": 100000, "to": null, "currency": "RUR", "gross": false},
      "snippet": {"requirement": "Strong <highlighttext>SQL</highlighttext>", "responsibility": "Build dashboards"},
      "experience": {"id": "between1And3", "name": "1-3 years"}
    },
    {
      "id": "102",
      "name": "Archived",
      "alternate_url": "https://hh.ru/vacancy/102",
      "archived": true,
      "salary": null
    }
  ]
}`

func newTestClient(server *httptest.Server, token string) *Client {
	c := New(zap.NewNop(), token)
	c.APIURL = server.URL
	c.HTTPClient = server.Client()
	return c
}

func TestSourceFetchPage(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SearchPath, r.URL.Path)
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(searchPageJSON))
		_ = gz.Close()
	}))
	defer server.Close()

	source := NewSource(newTestClient(server, ""), SourceConfig{Params: SearchParams{Areas: []int{1, 2}, Text: "ignored"}}, nil)

	postings, err := source.FetchPage(context.Background(), "data analyst", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"data analyst"}, gotQuery["text"])
	assert.Equal(t, []string{"0"}, gotQuery["page"])
	assert.Equal(t, []string{"100"}, gotQuery["per_page"])
	assert.Equal(t, []string{"1", "2"}, gotQuery["area"])
	assert.Empty(t, gotAuth, "anonymous search must not send a token")

	require.Len(t, postings, 1)
	p := postings[0]
	assert.Equal(t, "https://hh.ru/vacancy/101", p.RawID)
	assert.Equal(t, "101", p.Snapshot.SourceID)
	assert.Equal(t, "Data Analyst", p.Snapshot.Title)
	assert.Equal(t, "Acme", p.Snapshot.Company)
	assert.Equal(t, "Moscow", p.Snapshot.Location)
	assert.Contains(t, p.Snapshot.Description, "Requirement: Strong SQL")
	assert.Contains(t, p.Snapshot.Description, "Salary: from 100000 RUR")
	assert.NotContains(t, p.Snapshot.Description, "highlighttext")
}

func TestSourceFetchPagePastEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"found": 3, "pages": 2, "page": 2, "items": []any{}})
	}))
	defer server.Close()

	source := NewSource(newTestClient(server, ""), SourceConfig{}, nil)

	postings, err := source.FetchPage(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestSourceDetailedUsesFullDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SearchPath:
			_, _ = w.Write([]byte(searchPageJSON))
		case SearchPath + "/101":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "101",
				"name":          "Data Analyst",
				"alternate_url": "https://hh.ru/vacancy/101",
				"employer":      map[string]any{"name": "Acme"},
				"description":   "<p>Full <b>description</b></p>",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewSource(newTestClient(server, ""), SourceConfig{Detailed: true}, nil)

	postings, err := source.FetchPage(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "Full description", postings[0].Snapshot.Description)
}

func TestSourceFetchPageBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewSource(newTestClient(server, ""), SourceConfig{}, nil)

	_, err := source.FetchPage(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGetNegotiationsFollowsPages(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		page := r.URL.Query().Get("page")
		items := []any{map[string]any{"id": "n" + page, "vacancy": map[string]any{"id": "v" + page}}}
		_ = json.NewEncoder(w).Encode(map[string]any{"pages": 2, "page": map[string]int{"0": 0, "1": 1}[page], "items": items})
	}))
	defer server.Close()

	negotiations, err := newTestClient(server, "token").GetNegotiations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer token", auth)
	assert.Equal(t, []string{"v0", "v1"}, negotiations.VacanciesIDs())
}

func TestGetNegotiationsRequiresToken(t *testing.T) {
	_, err := New(nil, "").GetNegotiations(context.Background())
	require.Error(t, err)
}

func TestBuildParams(t *testing.T) {
	q := buildParams(&SearchParams{
		Text:       "go",
		Schedules:  []string{"remote", "flexible"},
		Experience: "between1And3",
		PerPage:    "50",
	})

	assert.Equal(t, "go", q.Get("text"))
	assert.Equal(t, []string{"remote", "flexible"}, q["schedule"])
	assert.Equal(t, "between1And3", q.Get("experience"))
	assert.Equal(t, "50", q.Get("per_page"))
	assert.NotContains(t, q, "clusters")
	assert.NotContains(t, q, "employer_id")
	assert.NotContains(t, q, "period")
}

func TestSalaryText(t *testing.T) {
	v := &Vacancy{}
	assert.Empty(t, v.SalaryText())

	v.Salary = &struct {
		From     int    `json:"from,omitempty"`
		To       int    `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
		Gross    bool   `json:"gross,omitempty"`
	}{From: 1, To: 2, Currency: "EUR"}
	assert.Equal(t, "1-2 EUR", v.SalaryText())
}
