package apis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFederalRegisterTestClient(srvURL string) *FederalRegisterClient {
	return NewFederalRegisterClient(FederalRegisterConfig{
		BaseURL:  srvURL,
		MinDelay: time.Millisecond,
	}, nil)
}

func TestCleanExecutiveOrderHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text passes through trimmed",
			in:   "  Executive Order 14100\n\nSection 1. Purpose.  ",
			want: "Executive Order 14100\n\nSection 1. Purpose.",
		},
		{
			name: "pre block extracted and unescaped",
			in:   "<html><body><pre>Amends 3 U.S.C. &sect; 301 &lt;note&gt; &amp; &quot;related laws&quot;</pre></body></html>",
			want: "Amends 3 U.S.C. &sect; 301 <note> & \"related laws\"",
		},
		{
			name: "anchor tags stripped after unescaping",
			in:   "<html><pre>See <a href=\"/executive-order/14100\">EO 14100</a> for details.</pre></html>",
			want: "See  for details.",
		},
		{
			name: "html without pre returned verbatim",
			in:   "<html><body>no pre block</body></html>",
			want: "<html><body>no pre block</body></html>",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanExecutiveOrderHTML(tc.in))
		})
	}
}

func TestFederalRegisterClient_GetDocument_CleansPreWrappedText(t *testing.T) {
	// Given: one order whose raw text is served inside an HTML wrapper
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/documents/2024-12345", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprintf(w, `{
			"document_number": "2024-12345",
			"title": "Strengthening the Federal Workforce",
			"executive_order_number": 14100,
			"signing_date": "2024-03-01",
			"publication_date": "2024-03-05",
			"president": {"name": "Joseph R. Biden Jr.", "identifier": "joe-biden"},
			"citation": "89 FR 15301",
			"html_url": "https://www.federalregister.gov/d/2024-12345",
			"raw_text_url": "%s/raw/2024-12345.txt",
			"agencies": [{"name": "Office of Personnel Management", "id": 405}]
		}`, srv.URL)
	})
	mux.HandleFunc("/raw/2024-12345.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><pre>Executive Order 14100

By the authority vested in me as President by the Constitution &amp; the laws of the United States, see <a href="/x">3 U.S.C. 301</a>, it is hereby ordered:

Section 1. Purpose.</pre></body></html>`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	// When
	doc, err := client.GetDocument(context.Background(), "2024-12345")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "2024-12345", doc.ID)
	assert.Equal(t, "Strengthening the Federal Workforce", doc.Title)
	assert.Equal(t, "2024-03-01", doc.Date)
	assert.Equal(t, TypeExecutiveOrder, doc.Type)
	assert.Equal(t, SourceFederalRegister, doc.Source)
	assert.Equal(t, "https://www.federalregister.gov/d/2024-12345", doc.URL)

	assert.Contains(t, doc.Content, "By the authority vested in me as President by the Constitution & the laws")
	assert.Contains(t, doc.Content, "it is hereby ordered:")
	assert.NotContains(t, doc.Content, "<a href")
	assert.NotContains(t, doc.Content, "<pre>")

	assert.Equal(t, "14100", doc.Metadata["executive_order_number"])
	assert.Equal(t, "Joseph R. Biden Jr.", doc.Metadata["president"])
	assert.Equal(t, "2024-03-01", doc.Metadata["signing_date"])
	assert.Equal(t, []string{"Office of Personnel Management"}, doc.Metadata["agencies"])
}

func TestFederalRegisterClient_GetDocument_AbstractFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"document_number": "2024-00001",
			"title": "Minor Order",
			"signing_date": "2024-01-15",
			"abstract": "A short summary only."
		}`)
	}))
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	doc, err := client.GetDocument(context.Background(), "2024-00001")

	require.NoError(t, err)
	assert.Equal(t, "A short summary only.", doc.Content)
}

func TestFederalRegisterClient_ListDocumentIDs_Paginates(t *testing.T) {
	// Given: two listing pages
	var pagesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "PRESDOCU", q.Get("conditions[type]"))
		assert.Equal(t, "executive_order", q.Get("conditions[presidential_document_type]"))
		assert.Equal(t, "2025-01-01", q.Get("conditions[signing_date][gte]"))
		assert.Equal(t, "2025-06-30", q.Get("conditions[signing_date][lte]"))
		assert.Contains(t, q["fields[]"], "raw_text_url")
		assert.Contains(t, q["fields[]"], "html_url")

		page := q.Get("page")
		pagesSeen = append(pagesSeen, page)
		switch page {
		case "1":
			fmt.Fprint(w, `{"count": 3, "total_pages": 2, "results": [
				{"document_number": "2025-001", "title": "One", "signing_date": "2025-01-10"},
				{"document_number": "2025-002", "title": "Two", "signing_date": "2025-02-11"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"count": 3, "total_pages": 2, "results": [
				{"document_number": "2025-003", "title": "Three", "signing_date": "2025-03-12"}
			]}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	// When
	ids, err := client.ListDocumentIDs(context.Background(), "2025-01-01", "2025-06-30", 0)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-001", "2025-002", "2025-003"}, ids)
	assert.Equal(t, []string{"1", "2"}, pagesSeen)
}

func TestFederalRegisterClient_ListDocumentIDs_MaxStopsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 2, "total_pages": 1, "results": [
			{"document_number": "2025-001", "signing_date": "2025-01-10"},
			{"document_number": "2025-002", "signing_date": "2025-02-11"}
		]}`)
	}))
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	ids, err := client.ListDocumentIDs(context.Background(), "2025-01-01", "2025-06-30", 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"2025-001"}, ids)
}

func TestFederalRegisterClient_ListingCacheServesGetDocument(t *testing.T) {
	// Given: a listing page whose record carries everything GetDocument needs
	mux := http.NewServeMux()
	var srv *httptest.Server
	metadataFetches := 0

	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"count": 1, "total_pages": 1, "results": [
			{"document_number": "2025-100", "title": "Cached Order",
			 "executive_order_number": "14200", "signing_date": "2025-04-01",
			 "president": {"name": "President Example"},
			 "raw_text_url": "%s/raw/2025-100.txt"}
		]}`, srv.URL)
	})
	mux.HandleFunc("/documents/2025-100", func(w http.ResponseWriter, r *http.Request) {
		metadataFetches++
		http.Error(w, "cache should have served this", http.StatusInternalServerError)
	})
	mux.HandleFunc("/raw/2025-100.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Order body.")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	ids, err := client.ListDocumentIDs(context.Background(), "2025-01-01", "2025-06-30", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"2025-100"}, ids)

	// When
	doc, err := client.GetDocument(context.Background(), "2025-100")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "Cached Order", doc.Title)
	assert.Equal(t, "Order body.", doc.Content)
	assert.Equal(t, "14200", doc.Metadata["executive_order_number"])
	assert.Zero(t, metadataFetches)
}

func TestFederalRegisterClient_RawTextCacheHitsByURL(t *testing.T) {
	rawFetches := 0
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/raw/shared.txt", func(w http.ResponseWriter, r *http.Request) {
		rawFetches++
		fmt.Fprint(w, "Shared body.")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	client := newFederalRegisterTestClient(srv.URL)

	for i := 0; i < 3; i++ {
		text, err := client.GetExecutiveOrderText(context.Background(), srv.URL+"/raw/shared.txt")
		require.NoError(t, err)
		assert.Equal(t, "Shared body.", text)
	}

	assert.Equal(t, 1, rawFetches)
	assert.Equal(t, 1, client.TextCacheLen())
}

func TestEONumberString(t *testing.T) {
	assert.Equal(t, "14100", eoNumberString([]byte(`14100`)))
	assert.Equal(t, "14100", eoNumberString([]byte(`"14100"`)))
	assert.Equal(t, "", eoNumberString([]byte(`null`)))
	assert.Equal(t, "", eoNumberString(nil))
}

func TestValidateDateFormat(t *testing.T) {
	valid := []string{"2024-01-01", "1791-08-05", "2025-12-31"}
	for _, s := range valid {
		assert.True(t, ValidateDateFormat(s), s)
	}

	invalid := []string{"", "2024-1-1", "01-01-2024", "2024/01/01", "2024-01-01T00:00:00Z", "20240101"}
	for _, s := range invalid {
		assert.False(t, ValidateDateFormat(s), s)
	}
}
