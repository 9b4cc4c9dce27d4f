package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"alerteval/internal/domain"
)

const defaultQueryTimeout = 15 * time.Second

// HTTPSource queries a remote aggregation endpoint over HTTP.
// Params: endpoint URL, optional bearer token, and client timeout.
// Returns: DataSource implementation for the evaluation engine.
type HTTPSource struct {
	endpoint string
	token    string
	client   *http.Client
}

// queryRequest is the outbound aggregation request body.
// Params: descriptor fields plus range and grouping.
// Returns: JSON document sent to the aggregation endpoint.
type queryRequest struct {
	SourceID string   `json:"source_id"`
	Query    string   `json:"query"`
	FromMS   int64    `json:"from_ms"`
	ToMS     int64    `json:"to_ms"`
	GroupBy  []string `json:"group_by,omitempty"`
}

// queryResponse is the aggregation endpoint response body.
// Params: rows list with per-group values.
// Returns: decoded aggregation rows.
type queryResponse struct {
	Rows []queryRow `json:"rows"`
}

// queryRow is one response row before group-key canonicalization.
// Params: raw group values positionally matched to the requested dimensions.
// Returns: one aggregated data point.
type queryRow struct {
	GroupValues []string `json:"group_values,omitempty"`
	Value       float64  `json:"value"`
}

// NewHTTPSource builds an HTTP data source.
// Params: endpoint URL, optional bearer token, and timeout (0 uses the default).
// Returns: initialized source.
func NewHTTPSource(endpoint, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &HTTPSource{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Query issues one aggregation request for one bucket range.
// Params: query descriptor, half-open bucket range, and group-by dimensions.
// Returns: rows with canonical group keys, or transport/decode error.
func (s *HTTPSource) Query(ctx context.Context, query domain.QueryDescriptor, bucket TimeRange, groupBy []string) ([]Row, error) {
	body, err := json.Marshal(queryRequest{
		SourceID: query.SourceID,
		Query:    query.Query,
		FromMS:   bucket.Start.UnixMilli(),
		ToMS:     bucket.End.UnixMilli(),
		GroupBy:  groupBy,
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		request.Header.Set("Authorization", "Bearer "+s.token)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("query source %q: %w", query.SourceID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("query source %q: unexpected status %d", query.SourceID, response.StatusCode)
	}

	var decoded queryResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	rows := make([]Row, 0, len(decoded.Rows))
	for _, row := range decoded.Rows {
		rows = append(rows, Row{
			BucketStart: bucket.Start,
			Group:       domain.BuildGroupKey(groupBy, row.GroupValues),
			Value:       row.Value,
		})
	}
	return rows, nil
}
