// Package elastic wraps the official go-elasticsearch client with the small
// set of index lifecycle and bulk operations the reindex job needs. Bulk
// responses are parsed per item so a partial failure is reported instead of
// failing the whole request.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/vlikcc/yargisalzeka.V2/pkg/config"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

// Client wraps an Elasticsearch client.
type Client struct {
	es     *elasticsearch.Client
	logger *slog.Logger
}

// BulkDoc is one document of a bulk request. ID becomes the document _id.
type BulkDoc struct {
	ID     string
	Source any
}

// BulkFailure describes a document the cluster rejected.
type BulkFailure struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (f BulkFailure) String() string {
	return fmt.Sprintf("id=%s status=%d %s: %s", f.ID, f.Status, f.Type, f.Reason)
}

// BulkResult summarises one bulk request.
type BulkResult struct {
	Indexed  int
	Failures []BulkFailure
}

// NewClient creates a client for the configured addresses. It does not
// contact the cluster; use Ping for that.
func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	return newClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// NewClientWithTransport is NewClient with a custom HTTP transport.
func NewClientWithTransport(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*Client, error) {
	return newClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
}

func newClient(esCfg elasticsearch.Config) (*Client, error) {
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Client{
		es:     es,
		logger: slog.Default().With("component", "elasticsearch"),
	}, nil
}

// Ping verifies the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.ping", "%v", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.ping", "status %d", res.StatusCode)
	}
	return nil
}

// IndexExists reports whether the named index exists.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.exists", "%s: %v", name, err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.exists", "%s: status %d", name, res.StatusCode)
	}
}

// DeleteIndex removes the named index.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.delete", "%s: %v", name, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.delete", "%s: %s", name, readError(res.Body))
	}
	c.logger.Info("index deleted", "index", name)
	return nil
}

// CreateIndex creates the named index with the given settings and mappings
// body.
func (c *Client) CreateIndex(ctx context.Context, name string, body []byte) error {
	res, err := c.es.Indices.Create(name,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.create", "%s: %v", name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.create", "%s: %s", name, readError(res.Body))
	}
	c.logger.Info("index created", "index", name)
	return nil
}

// Bulk indexes docs into index. A transport or request-level failure returns
// an error; per-document rejections are returned in the result.
func (c *Client) Bulk(ctx context.Context, index string, docs []BulkDoc) (BulkResult, error) {
	if len(docs) == 0 {
		return BulkResult{}, nil
	}
	body, err := encodeBulk(index, docs)
	if err != nil {
		return BulkResult{}, err
	}
	res, err := c.es.Bulk(bytes.NewReader(body),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(index),
	)
	if err != nil {
		return BulkResult{}, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.bulk", "%s: %v", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return BulkResult{}, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.bulk", "%s: %s", index, readError(res.Body))
	}
	return decodeBulkResponse(res.Body)
}

// Refresh makes recently indexed documents visible to search and count.
func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.refresh", "%s: %v", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return apperrors.Newf(apperrors.ErrIndexOperation, "elastic.refresh", "%s: %s", index, readError(res.Body))
	}
	return nil
}

// Count returns the number of documents in index.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
	)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.count", "%s: %v", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, apperrors.Newf(apperrors.ErrIndexOperation, "elastic.count", "%s: %s", index, readError(res.Body))
	}
	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	return out.Count, nil
}

func encodeBulk(index string, docs []BulkDoc) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": index, "_id": doc.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encoding bulk action for %s: %w", doc.ID, err)
		}
		if err := enc.Encode(doc.Source); err != nil {
			return nil, fmt.Errorf("encoding bulk source for %s: %w", doc.ID, err)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func decodeBulkResponse(r io.Reader) (BulkResult, error) {
	var resp bulkResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return BulkResult{}, fmt.Errorf("decoding bulk response: %w", err)
	}
	var result BulkResult
	for _, item := range resp.Items {
		for _, outcome := range item {
			if outcome.Error == nil && outcome.Status < 300 {
				result.Indexed++
				continue
			}
			failure := BulkFailure{ID: outcome.ID, Status: outcome.Status}
			if outcome.Error != nil {
				failure.Type = outcome.Error.Type
				failure.Reason = outcome.Error.Reason
			}
			result.Failures = append(result.Failures, failure)
		}
	}
	return result, nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(string(data))
}
