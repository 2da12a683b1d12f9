package apis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

const (
	courtListenerBaseURL = "https://www.courtlistener.com/api/rest/v4"

	// scotusCourtID is the CourtListener court identifier for the
	// Supreme Court of the United States.
	scotusCourtID = "scotus"

	// clustersPageSize is the API maximum for the clusters endpoint.
	clustersPageSize = 20

	// maxClusterPages bounds the pagination walk regardless of what the
	// count preflight reported.
	maxClusterPages = 100
)

// CourtListenerConfig configures the SCOTUS adapter.
type CourtListenerConfig struct {
	// Token is the CourtListener API token, sent as "Authorization: Token <t>".
	Token string

	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string

	// MinDelay is the gap enforced between successive requests.
	// Defaults to 100 ms.
	MinDelay time.Duration

	// Timeout bounds one HTTP attempt. Defaults to 60 s; cluster listing
	// pages can be slow.
	Timeout time.Duration
}

// CourtListenerClient fetches Supreme Court opinions from the
// CourtListener REST API v4.
//
// Listing walks the clusters endpoint rather than opinions: date-filtered
// opinion queries time out server-side, and clusters carry the
// sub_opinions links that name every opinion ID for a case. The walk
// caches each cluster record per opinion ID so that GetDocument and
// ValidateCourt do not refetch case-level data during ingestion.
type CourtListenerClient struct {
	cfg    CourtListenerConfig
	http   *Client
	logger *slog.Logger

	mu       sync.Mutex
	clusters map[string]*clusterRecord // opinion ID -> cluster from listing
	dockets  map[string]*docketRecord  // docket URL -> docket
}

var _ Adapter = (*CourtListenerClient)(nil)

// NewCourtListenerClient builds the adapter. The token may be empty for
// fixture-backed tests; production calls require one.
func NewCourtListenerClient(cfg CourtListenerConfig, logger *slog.Logger) *CourtListenerClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = courtListenerBaseURL
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = 100 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Token " + cfg.Token
	}

	return &CourtListenerClient{
		cfg: cfg,
		http: NewClient(ClientConfig{
			Headers:  headers,
			MinDelay: cfg.MinDelay,
			Timeout:  cfg.Timeout,
		}, logger),
		logger:   logger,
		clusters: make(map[string]*clusterRecord),
		dockets:  make(map[string]*docketRecord),
	}
}

// opinionRecord is the subset of a CourtListener opinion we consume.
type opinionRecord struct {
	ID          int    `json:"id"`
	ResourceURI string `json:"resource_uri"`
	Cluster     string `json:"cluster"`
	ClusterID   int    `json:"cluster_id"`
	PlainText   string `json:"plain_text"`
	AuthorStr   string `json:"author_str"`
	JoinedByStr string `json:"joined_by_str"`
	PerCuriam   bool   `json:"per_curiam"`
	Type        string `json:"type"`
	PageCount   int    `json:"page_count"`
	DownloadURL string `json:"download_url"`
	DateCreated string `json:"date_created"`
}

// citationRecord is one parallel citation on a cluster. type 1 marks the
// official reporter.
type citationRecord struct {
	Type     int    `json:"type"`
	Volume   string `json:"volume"`
	Reporter string `json:"reporter"`
	Page     string `json:"page"`
}

// clusterRecord is the case-level record grouping related opinions.
type clusterRecord struct {
	ID          int              `json:"id"`
	CaseName    string           `json:"case_name"`
	DateFiled   string           `json:"date_filed"`
	Docket      string           `json:"docket"`
	Judges      string           `json:"judges"`
	Citations   []citationRecord `json:"citations"`
	SubOpinions []string         `json:"sub_opinions"`
}

type docketRecord struct {
	CourtID      string `json:"court_id"`
	DocketNumber string `json:"docket_number"`
}

// clusterPage is one page of the clusters listing. With count=on the API
// returns only Count.
type clusterPage struct {
	Count   int             `json:"count"`
	Next    string          `json:"next"`
	Results []clusterRecord `json:"results"`
}

// GetDocument fetches an opinion and its cluster and assembles a
// Document with case name, bluebook citation, and opinion metadata.
func (c *CourtListenerClient) GetDocument(ctx context.Context, id string) (*Document, error) {
	op, err := c.getOpinion(ctx, id)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"id":            op.ID,
		"resource_uri":  op.ResourceURI,
		"cluster_id":    op.ClusterID,
		"date":          datePart(op.DateCreated),
		"author_str":    op.AuthorStr,
		"joined_by_str": op.JoinedByStr,
		"per_curiam":    op.PerCuriam,
		"type":          op.Type,
		"page_count":    op.PageCount,
		"download_url":  op.DownloadURL,
	}

	caseName := "Unknown Case"
	date := datePart(op.DateCreated)

	cluster, err := c.clusterForOpinion(ctx, id, op)
	if err != nil {
		// Cluster data enriches but is not required; the opinion text
		// alone is still ingestable.
		c.logger.Warn("failed to fetch cluster data",
			slog.String("opinion_id", id),
			gverrors.LogAttr(err))
	}
	if cluster != nil {
		if cluster.CaseName != "" {
			caseName = cluster.CaseName
		}
		if cluster.DateFiled != "" {
			date = cluster.DateFiled
		}
		metadata["case_name"] = caseName
		metadata["citation"] = buildBluebookCitation(cluster)
		metadata["judges"] = cluster.Judges
		metadata["date_filed"] = cluster.DateFiled

		c.mu.Lock()
		if docket, ok := c.dockets[cluster.Docket]; ok && docket.DocketNumber != "" {
			metadata["docket_number"] = docket.DocketNumber
		}
		c.mu.Unlock()
	}

	return &Document{
		ID:       id,
		Title:    caseName,
		Date:     date,
		Type:     TypeScotusOpinion,
		Source:   SourceCourtListener,
		Content:  op.PlainText,
		URL:      op.DownloadURL,
		Metadata: metadata,
	}, nil
}

// GetDocumentText fetches only the opinion's plain text.
func (c *CourtListenerClient) GetDocumentText(ctx context.Context, id string) (string, error) {
	op, err := c.getOpinion(ctx, id)
	if err != nil {
		return "", err
	}
	return op.PlainText, nil
}

// ListDocumentIDs walks the clusters endpoint for SCOTUS cases filed in
// [startDate, endDate] and returns the IDs of every sub-opinion.
//
// A count preflight establishes the expected total first: date ranges
// that report implausibly many clusters (more than max(1000, years*200))
// abort the walk rather than hammer the API, since SCOTUS files on the
// order of 100 cases per term.
func (c *CourtListenerClient) ListDocumentIDs(ctx context.Context, startDate, endDate string, max int) ([]string, error) {
	if !ValidateDateFormat(startDate) {
		return nil, gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid start date %q, want YYYY-MM-DD", startDate), nil)
	}
	if !ValidateDateFormat(endDate) {
		return nil, gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid end date %q, want YYYY-MM-DD", endDate), nil)
	}

	listURL := c.cfg.BaseURL + "/clusters/"
	params := url.Values{}
	params.Set("docket__court", scotusCourtID)
	params.Set("date_filed__gte", startDate)
	params.Set("date_filed__lte", endDate)
	params.Set("order_by", "-date_filed,id")
	params.Set("page_size", strconv.Itoa(clustersPageSize))

	maxClusters, err := c.preflightCount(ctx, listURL, params, startDate, endDate)
	if err != nil {
		return nil, err
	}

	var ids []string
	clustersSeen := 0
	page := 1
	nextURL := listURL
	pageParams := params

	for nextURL != "" && clustersSeen < maxClusters {
		var pg clusterPage
		if err := c.http.GetJSON(ctx, nextURL, pageParams, &pg); err != nil {
			return nil, err
		}
		if len(pg.Results) == 0 {
			break
		}

		for i := range pg.Results {
			cluster := &pg.Results[i]
			clustersSeen++

			for _, opinionURL := range cluster.SubOpinions {
				opinionID := opinionIDFromURL(opinionURL)
				if opinionID == "" {
					c.logger.Warn("could not extract opinion ID",
						slog.String("url", opinionURL))
					continue
				}
				c.mu.Lock()
				c.clusters[opinionID] = cluster
				c.mu.Unlock()
				ids = append(ids, opinionID)
				if max > 0 && len(ids) >= max {
					return ids, nil
				}
			}
			if clustersSeen >= maxClusters {
				c.logger.Info("reached cluster limit",
					slog.Int("max_clusters", maxClusters))
				break
			}
		}

		c.logger.Info("fetched cluster page",
			slog.Int("page", page),
			slog.Int("clusters", len(pg.Results)),
			slog.Int("opinions", len(ids)))

		nextURL = pg.Next
		pageParams = nil // next links embed the query
		page++
		if page > maxClusterPages {
			c.logger.Warn("reached page limit, stopping pagination",
				slog.Int("max_pages", maxClusterPages))
			break
		}
	}

	c.logger.Info("cluster walk complete",
		slog.Int("opinion_ids", len(ids)),
		slog.Int("clusters", clustersSeen))
	return ids, nil
}

// preflightCount asks the API for the total cluster count and applies
// the sanity cap. Returns the number of clusters the walk may consume.
func (c *CourtListenerClient) preflightCount(ctx context.Context, listURL string, params url.Values, startDate, endDate string) (int, error) {
	countParams := url.Values{}
	for k, vs := range params {
		countParams[k] = vs
	}
	countParams.Set("count", "on")

	var pg clusterPage
	if err := c.http.GetJSON(ctx, listURL, countParams, &pg); err != nil {
		return 0, err
	}
	if pg.Count == 0 {
		c.logger.Warn("count preflight returned no total, capping at 1000")
		return 1000, nil
	}

	limit := expectedClusterMax(startDate, endDate) * 2
	if limit < 1000 {
		limit = 1000
	}
	if pg.Count > limit {
		return 0, gverrors.ValidationError(
			fmt.Sprintf("found %d clusters for %s..%s, far more than the %d expected for scotus",
				pg.Count, startDate, endDate, limit), nil).
			WithSuggestion("Narrow the date range or verify the court filter.")
	}

	c.logger.Info("cluster count preflight",
		slog.Int("total", pg.Count),
		slog.Int("cap", limit))
	return pg.Count, nil
}

// expectedClusterMax estimates how many SCOTUS clusters a date range can
// plausibly contain, at roughly 100 cases per year.
func expectedClusterMax(startDate, endDate string) int {
	start, err1 := time.Parse("2006-01-02", startDate)
	end, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 1000
	}
	years := end.Sub(start).Hours()/(24*365) + 1
	return int(years * 100)
}

// ValidateCourt checks that the opinion belongs to the Supreme Court by
// walking opinion -> cluster -> docket. Search indexes occasionally
// return stale rows from other courts; the ingester calls this before
// spending LLM and embedding budget on a document.
func (c *CourtListenerClient) ValidateCourt(ctx context.Context, opinionID string) error {
	cluster, err := c.clusterForOpinion(ctx, opinionID, nil)
	if err != nil {
		return err
	}
	if cluster.Docket == "" {
		return gverrors.ValidationError(
			fmt.Sprintf("cluster for opinion %s has no docket URL", opinionID), nil)
	}

	docket, err := c.getDocket(ctx, cluster.Docket)
	if err != nil {
		return err
	}
	if docket.CourtID != scotusCourtID {
		return gverrors.ValidationError(
			fmt.Sprintf("opinion %s belongs to court %q (not scotus)", opinionID, docket.CourtID), nil)
	}
	return nil
}

// ListingMetadata returns the case fields captured for an opinion during
// the cluster walk, or nil when the opinion was not seen in a listing.
// The ingester stores these on the opinion's progress row.
func (c *CourtListenerClient) ListingMetadata(opinionID string) map[string]any {
	c.mu.Lock()
	cluster, ok := c.clusters[opinionID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return map[string]any{
		"case_name":  cluster.CaseName,
		"date_filed": cluster.DateFiled,
		"docket_url": cluster.Docket,
	}
}

// getOpinion fetches one opinion record. The ID must be numeric.
func (c *CourtListenerClient) getOpinion(ctx context.Context, id string) (*opinionRecord, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return nil, gverrors.ValidationError(
			fmt.Sprintf("opinion ID %q is not numeric", id), err)
	}

	var op opinionRecord
	if err := c.http.GetJSON(ctx, c.cfg.BaseURL+"/opinions/"+id+"/", nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// clusterForOpinion returns the cluster for an opinion, preferring the
// record cached during the listing walk. op may be nil; it is fetched
// when needed.
func (c *CourtListenerClient) clusterForOpinion(ctx context.Context, opinionID string, op *opinionRecord) (*clusterRecord, error) {
	c.mu.Lock()
	cached, ok := c.clusters[opinionID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if op == nil {
		fetched, err := c.getOpinion(ctx, opinionID)
		if err != nil {
			return nil, err
		}
		op = fetched
	}
	if op.Cluster == "" {
		return nil, gverrors.New(gverrors.ErrCodeMalformedResponse,
			fmt.Sprintf("opinion %s has no cluster URL", opinionID), nil)
	}

	var cluster clusterRecord
	if err := c.http.GetJSON(ctx, op.Cluster, nil, &cluster); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.clusters[opinionID] = &cluster
	c.mu.Unlock()
	return &cluster, nil
}

// getDocket fetches a docket record, memoizing by URL. Opinions from the
// same case share a docket, so the cache saves one request per sibling
// opinion.
func (c *CourtListenerClient) getDocket(ctx context.Context, docketURL string) (*docketRecord, error) {
	c.mu.Lock()
	cached, ok := c.dockets[docketURL]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var docket docketRecord
	if err := c.http.GetJSON(ctx, docketURL, nil, &docket); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.dockets[docketURL] = &docket
	c.mu.Unlock()
	return &docket, nil
}

// buildBluebookCitation formats "<volume> <reporter> <page> (<year>)"
// from a cluster's citation list, preferring the official reporter
// (type 1) and falling back to the first citation. Returns "" when any
// required component is missing.
func buildBluebookCitation(cluster *clusterRecord) string {
	if cluster == nil || len(cluster.Citations) == 0 || cluster.DateFiled == "" {
		return ""
	}

	primary := cluster.Citations[0]
	for _, cite := range cluster.Citations {
		if cite.Type == 1 {
			primary = cite
			break
		}
	}
	if primary.Volume == "" || primary.Reporter == "" || primary.Page == "" {
		return ""
	}

	year, _, _ := strings.Cut(cluster.DateFiled, "-")
	if year == "" {
		return ""
	}
	return fmt.Sprintf("%s %s %s (%s)", primary.Volume, primary.Reporter, primary.Page, year)
}

// opinionIDFromURL extracts the trailing path segment of a sub_opinions
// URL, which is the opinion ID.
func opinionIDFromURL(opinionURL string) string {
	trimmed := strings.TrimRight(opinionURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return ""
	}
	return trimmed[idx+1:]
}

// datePart returns the YYYY-MM-DD prefix of an ISO timestamp, or "" when
// the input is too short.
func datePart(ts string) string {
	if len(ts) < 10 {
		return ""
	}
	return ts[:10]
}
