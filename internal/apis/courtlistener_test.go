package apis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCourtListenerTestClient wires the adapter to a fixture server with
// delays small enough for tests.
func newCourtListenerTestClient(srvURL string) *CourtListenerClient {
	return NewCourtListenerClient(CourtListenerConfig{
		Token:    "test-token",
		BaseURL:  srvURL,
		MinDelay: time.Millisecond,
	}, nil)
}

// TS03: official reporter citation preferred over parallel citations
func TestBuildBluebookCitation_PrefersOfficialReporter(t *testing.T) {
	cluster := &clusterRecord{
		DateFiled: "2024-05-16",
		Citations: []citationRecord{
			{Type: 2, Volume: "144", Reporter: "S. Ct.", Page: "1474"},
			{Type: 1, Volume: "601", Reporter: "U.S.", Page: "416"},
		},
	}

	assert.Equal(t, "601 U.S. 416 (2024)", buildBluebookCitation(cluster))
}

func TestBuildBluebookCitation_FallsBackToFirstCitation(t *testing.T) {
	cluster := &clusterRecord{
		DateFiled: "1973-01-22",
		Citations: []citationRecord{
			{Type: 3, Volume: "410", Reporter: "U.S.", Page: "113"},
		},
	}

	assert.Equal(t, "410 U.S. 113 (1973)", buildBluebookCitation(cluster))
}

func TestBuildBluebookCitation_MissingComponents(t *testing.T) {
	// No citations at all.
	assert.Empty(t, buildBluebookCitation(&clusterRecord{DateFiled: "2024-05-16"}))

	// No filing date.
	assert.Empty(t, buildBluebookCitation(&clusterRecord{
		Citations: []citationRecord{{Type: 1, Volume: "601", Reporter: "U.S.", Page: "416"}},
	}))

	// Citation missing its page.
	assert.Empty(t, buildBluebookCitation(&clusterRecord{
		DateFiled: "2024-05-16",
		Citations: []citationRecord{{Type: 1, Volume: "601", Reporter: "U.S."}},
	}))
}

func TestCourtListenerClient_GetDocument_AssemblesMetadata(t *testing.T) {
	// Given: fixture endpoints for one opinion and its cluster
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/opinions/9000/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "GovernmentReporter/0.1.0", r.Header.Get("User-Agent"))
		fmt.Fprintf(w, `{
			"id": 9000,
			"resource_uri": "%s/opinions/9000/",
			"cluster": "%s/clusters/7000/",
			"cluster_id": 7000,
			"plain_text": "JUSTICE BARRETT delivered the opinion of the Court.",
			"author_str": "Barrett",
			"per_curiam": false,
			"type": "010combined",
			"page_count": 12,
			"download_url": "https://example.com/9000.pdf",
			"date_created": "2024-06-21T14:00:00Z"
		}`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/clusters/7000/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 7000,
			"case_name": "Department of State v. Munoz",
			"date_filed": "2024-06-21",
			"docket": "https://example.com/dockets/100/",
			"judges": "Barrett",
			"citations": [{"type": 1, "volume": "602", "reporter": "U.S.", "page": "899"}],
			"sub_opinions": []
		}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	// When
	doc, err := client.GetDocument(context.Background(), "9000")

	// Then: the Document carries the cluster's case name, filing date,
	// and citation alongside the opinion fields
	require.NoError(t, err)
	assert.Equal(t, "9000", doc.ID)
	assert.Equal(t, "Department of State v. Munoz", doc.Title)
	assert.Equal(t, "2024-06-21", doc.Date)
	assert.Equal(t, TypeScotusOpinion, doc.Type)
	assert.Equal(t, SourceCourtListener, doc.Source)
	assert.Equal(t, "JUSTICE BARRETT delivered the opinion of the Court.", doc.Content)
	assert.Equal(t, "https://example.com/9000.pdf", doc.URL)

	assert.Equal(t, "Department of State v. Munoz", doc.Metadata["case_name"])
	assert.Equal(t, "602 U.S. 899 (2024)", doc.Metadata["citation"])
	assert.Equal(t, "010combined", doc.Metadata["type"])
	assert.Equal(t, "Barrett", doc.Metadata["judges"])
	assert.Equal(t, false, doc.Metadata["per_curiam"])
}

func TestCourtListenerClient_GetDocument_ClusterFetchFailureDegrades(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/opinions/9001/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"id": 9001,
			"cluster": "%s/clusters/missing/",
			"plain_text": "Per Curiam.",
			"type": "010combined",
			"date_created": "2023-03-01T00:00:00Z"
		}`, srv.URL)
	})
	mux.HandleFunc("/clusters/missing/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	doc, err := client.GetDocument(context.Background(), "9001")

	// Then: the opinion is still returned, dated from the opinion record
	require.NoError(t, err)
	assert.Equal(t, "Unknown Case", doc.Title)
	assert.Equal(t, "2023-03-01", doc.Date)
	assert.NotContains(t, doc.Metadata, "citation")
}

func TestCourtListenerClient_GetDocument_RejectsNonNumericID(t *testing.T) {
	client := newCourtListenerTestClient("http://127.0.0.1:0")

	_, err := client.GetDocument(context.Background(), "abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestCourtListenerClient_ListDocumentIDs_WalksClusters(t *testing.T) {
	// Given: a count preflight and two listing pages of clusters
	mux := http.NewServeMux()
	var srv *httptest.Server
	var clusterHits, opinionHits sync.Map

	mux.HandleFunc("/clusters/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("count") == "on" {
			assert.Equal(t, "scotus", q.Get("docket__court"))
			assert.Equal(t, "2024-01-01", q.Get("date_filed__gte"))
			assert.Equal(t, "2024-12-31", q.Get("date_filed__lte"))
			fmt.Fprint(w, `{"count": 3}`)
			return
		}
		switch q.Get("page") {
		case "", "1":
			clusterHits.Store("page1", true)
			fmt.Fprintf(w, `{
				"next": "%s/clusters/?page=2",
				"results": [
					{"id": 1, "case_name": "Alpha v. Beta", "date_filed": "2024-06-21",
					 "docket": "https://example.com/dockets/1/",
					 "sub_opinions": ["%s/opinions/11/", "%s/opinions/12/"]},
					{"id": 2, "case_name": "Gamma v. Delta", "date_filed": "2024-06-20",
					 "docket": "https://example.com/dockets/2/",
					 "sub_opinions": ["%s/opinions/21/"]}
				]
			}`, srv.URL, srv.URL, srv.URL, srv.URL)
		case "2":
			clusterHits.Store("page2", true)
			fmt.Fprintf(w, `{
				"next": null,
				"results": [
					{"id": 3, "case_name": "Epsilon v. Zeta", "date_filed": "2024-06-19",
					 "docket": "https://example.com/dockets/3/",
					 "sub_opinions": ["%s/opinions/31/"]}
				]
			}`, srv.URL)
		}
	})
	mux.HandleFunc("/opinions/", func(w http.ResponseWriter, r *http.Request) {
		opinionHits.Store(r.URL.Path, true)
		http.Error(w, "should not be called during listing", http.StatusInternalServerError)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	// When
	ids, err := client.ListDocumentIDs(context.Background(), "2024-01-01", "2024-12-31", 0)

	// Then: every sub-opinion ID in listing order, no opinion fetches
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "12", "21", "31"}, ids)

	_, page2 := clusterHits.Load("page2")
	assert.True(t, page2, "pagination should follow the next link")
	opinionCalls := 0
	opinionHits.Range(func(_, _ any) bool { opinionCalls++; return true })
	assert.Zero(t, opinionCalls)
}

func TestCourtListenerClient_ListDocumentIDs_CachesClustersForGetDocument(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	clusterEndpointCalls := 0

	mux.HandleFunc("/clusters/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") == "on" {
			fmt.Fprint(w, `{"count": 1}`)
			return
		}
		clusterEndpointCalls++
		fmt.Fprintf(w, `{
			"next": null,
			"results": [
				{"id": 1, "case_name": "Alpha v. Beta", "date_filed": "2024-06-21",
				 "docket": "https://example.com/dockets/1/",
				 "citations": [{"type": 1, "volume": "601", "reporter": "U.S.", "page": "416"}],
				 "sub_opinions": ["%s/opinions/11/"]}
			]
		}`, srv.URL)
	})
	mux.HandleFunc("/opinions/11/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": 11,
			"cluster": "https://example.com/clusters/should-not-fetch/",
			"plain_text": "Opinion text.",
			"type": "020lead",
			"date_created": "2024-06-21T00:00:00Z"
		}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	ids, err := client.ListDocumentIDs(context.Background(), "2024-01-01", "2024-12-31", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"11"}, ids)

	// When: fetching a listed document
	doc, err := client.GetDocument(context.Background(), "11")

	// Then: cluster data comes from the listing cache, not a refetch
	require.NoError(t, err)
	assert.Equal(t, "Alpha v. Beta", doc.Title)
	assert.Equal(t, "601 U.S. 416 (2024)", doc.Metadata["citation"])
	assert.Equal(t, 1, clusterEndpointCalls)
}

func TestCourtListenerClient_ListDocumentIDs_SanityCapAborts(t *testing.T) {
	// Given: a count preflight reporting an implausible total
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("count") == "on" {
			fmt.Fprint(w, `{"count": 50000}`)
			return
		}
		t.Error("pagination should not start after a failed preflight")
	}))
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	_, err := client.ListDocumentIDs(context.Background(), "2024-01-01", "2024-12-31", 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "far more")
}

func TestCourtListenerClient_ListDocumentIDs_RejectsBadDates(t *testing.T) {
	client := newCourtListenerTestClient("http://127.0.0.1:0")

	_, err := client.ListDocumentIDs(context.Background(), "01/01/2024", "2024-12-31", 0)
	require.Error(t, err)

	_, err = client.ListDocumentIDs(context.Background(), "2024-01-01", "2024-12", 0)
	require.Error(t, err)
}

func TestCourtListenerClient_ValidateCourt_NotScotus(t *testing.T) {
	// Given: an opinion whose docket belongs to the Ninth Circuit
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/opinions/500/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": 500, "cluster": "%s/clusters/600/", "plain_text": "x"}`, srv.URL)
	})
	mux.HandleFunc("/clusters/600/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": 600, "case_name": "In re Levi", "docket": "%s/dockets/700/"}`, srv.URL)
	})
	mux.HandleFunc("/dockets/700/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"court_id": "ca9", "docket_number": "22-1234"}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	err := client.ValidateCourt(context.Background(), "500")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not scotus")
}

func TestCourtListenerClient_ValidateCourt_ScotusPasses(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	docketCalls := 0

	mux.HandleFunc("/opinions/501/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": 501, "cluster": "%s/clusters/601/", "plain_text": "x"}`, srv.URL)
	})
	mux.HandleFunc("/clusters/601/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": 601, "docket": "%s/dockets/701/"}`, srv.URL)
	})
	mux.HandleFunc("/dockets/701/", func(w http.ResponseWriter, r *http.Request) {
		docketCalls++
		fmt.Fprint(w, `{"court_id": "scotus", "docket_number": "23-0001"}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newCourtListenerTestClient(srv.URL)

	require.NoError(t, client.ValidateCourt(context.Background(), "501"))

	// Second validation reuses the memoized docket.
	require.NoError(t, client.ValidateCourt(context.Background(), "501"))
	assert.Equal(t, 1, docketCalls)
}

func TestOpinionIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.courtlistener.com/api/rest/v4/opinions/123456/", "123456"},
		{"https://www.courtlistener.com/api/rest/v4/opinions/123456", "123456"},
		{"/opinions/77/", "77"},
		{"", ""},
		{"///", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, opinionIDFromURL(tc.url), "url %q", tc.url)
	}
}

func TestExpectedClusterMax(t *testing.T) {
	// One year of SCOTUS output is roughly 100 cases.
	assert.Equal(t, 200, expectedClusterMax("2024-01-01", "2024-12-31"))

	// Malformed dates fall back to the fixed cap.
	assert.Equal(t, 1000, expectedClusterMax("bad", "2024-12-31"))
	assert.Equal(t, 1000, expectedClusterMax("2024-12-31", "2024-01-01"))
}
