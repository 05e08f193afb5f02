// Package bedesten is a client for the Ministry of Justice document API that
// serves court decisions and legislation. Every call is a JSON POST wrapped in
// a {data, applicationName} envelope and answered with a {data, metadata}
// envelope whose metadata.FMTY must be "SUCCESS".
//
// The client returns errors; deciding whether an error ends a run, a page or
// only a single record is left to the caller.
package bedesten

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/pkg/config"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
	"github.com/vlikcc/yargisalzeka.V2/pkg/metrics"
	"github.com/vlikcc/yargisalzeka.V2/pkg/resilience"
)

const (
	pathDecisionItemTypes  = "/emsal-karar/getItemTypes"
	pathDecisionUnits      = "/emsal-karar/getBirimler"
	pathDecisionSearch     = "/emsal-karar/searchDocuments"
	pathDecisionContent    = "/emsal-karar/getDocumentContent"
	pathLegislationTypes   = "/mevzuat/mevzuatTypes"
	pathLegislationSearch  = "/mevzuat/searchDocuments"
	pathLegislationContent = "/mevzuat/getDocumentContent"

	maxErrorBody = 2048
)

// APIError is returned when the API answers with a non-SUCCESS envelope.
type APIError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api returned %s: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return apperrors.ErrRemoteRejected
}

// HTTPError is returned for a non-2xx HTTP status.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return apperrors.ErrTransient
}

// Client talks to the document API.
type Client struct {
	baseURL    string
	appName    string
	userAgent  string
	httpClient *http.Client
	delay      *Delay
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records call latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDelay overrides the configured pre-request delay.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = NewDelay(d) }
}

// WithBreaker replaces the breaker built from the configuration. Nil
// disables it.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New creates a Client from the source configuration. A positive
// BreakerThreshold puts a circuit breaker in front of the API that counts
// transport and HTTP failures but not API rejections.
func New(cfg config.SourceConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appName:    cfg.ApplicationName,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		delay:      NewDelay(cfg.RequestDelay),
		logger:     slog.Default().With("component", "bedesten-client"),
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = resilience.NewCircuitBreaker("bedesten", resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			Cooldown:         cfg.BreakerCooldown,
			IsFailure:        countsAgainstBreaker,
		})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DecisionItemTypes enumerates decision families known to the API.
func (c *Client) DecisionItemTypes(ctx context.Context) ([]CatalogEntry, error) {
	var out []CatalogEntry
	err := c.post(ctx, pathDecisionItemTypes, request{ApplicationName: c.appName}, &out)
	return out, err
}

// DecisionUnits enumerates the courts and chambers for an item type.
func (c *Client) DecisionUnits(ctx context.Context, itemType string) ([]CatalogEntry, error) {
	var out []CatalogEntry
	body := request{
		Data:            map[string]string{"itemType": itemType},
		ApplicationName: c.appName,
	}
	err := c.post(ctx, pathDecisionUnits, body, &out)
	return out, err
}

// SearchDecisions fetches one page of decisions, newest decision date first.
func (c *Client) SearchDecisions(ctx context.Context, q DecisionQuery, page, pageSize int) (*DecisionPage, error) {
	data := decisionSearchData{
		PageSize:      pageSize,
		PageNumber:    page,
		ItemTypeList:  []string{q.ItemType},
		SortFields:    []string{"KARAR_TARIHI"},
		SortDirection: "desc",
		Phrase:        q.Phrase,
		EsasNoYil:     q.CaseYear,
		KararNoYil:    q.DecisionYear,
	}
	if q.UnitID != "" {
		data.BirimIDList = []string{q.UnitID}
	}
	var out DecisionPage
	body := request{Data: data, ApplicationName: c.appName, Paging: true}
	if err := c.post(ctx, pathDecisionSearch, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecisionContent returns the base64 encoded body of a decision.
func (c *Client) DecisionContent(ctx context.Context, documentID string) (string, error) {
	var out documentContent
	body := request{
		Data:            map[string]string{"documentId": documentID},
		ApplicationName: c.appName,
	}
	if err := c.post(ctx, pathDecisionContent, body, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// LegislationTypes enumerates legislation families known to the API.
func (c *Client) LegislationTypes(ctx context.Context) ([]CatalogEntry, error) {
	var out []CatalogEntry
	err := c.post(ctx, pathLegislationTypes, request{}, &out)
	return out, err
}

// SearchLegislation fetches one page of legislation of the given type,
// newest official gazette date first.
func (c *Client) SearchLegislation(ctx context.Context, legislationType string, page, pageSize int) (*LegislationPage, error) {
	data := legislationSearchData{
		PageSize:       pageSize,
		PageNumber:     page,
		MevzuatTurList: []string{legislationType},
		SortFields:     []string{"RESMI_GAZETE_TARIHI"},
		SortDirection:  "desc",
	}
	var out LegislationPage
	body := request{Data: data, ApplicationName: c.appName, Paging: true}
	if err := c.post(ctx, pathLegislationSearch, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LegislationContent returns the base64 encoded body of a piece of
// legislation.
func (c *Client) LegislationContent(ctx context.Context, id string) (string, error) {
	var out documentContent
	body := request{
		Data:            map[string]string{"documentType": "MEVZUAT", "id": id},
		ApplicationName: c.appName,
	}
	if err := c.post(ctx, pathLegislationContent, body, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Ping performs the cheapest call the API offers and reports whether it
// answered with a successful envelope.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.DecisionItemTypes(ctx)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	if err := c.delay.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	return c.breaker.Execute(func() error {
		return c.exchange(ctx, path, payload, out)
	})
}

func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, apperrors.ErrTransient)
}

func (c *Client) exchange(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("AdaletApplicationName", c.appName)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RemoteCall(path, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", path, ctx.Err())
		}
		return apperrors.Newf(apperrors.ErrTransient, path, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Endpoint: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.Newf(apperrors.ErrTransient, path, "decoding response envelope: %v", err)
	}
	if env.Metadata.FMTY != "SUCCESS" {
		msg := env.Metadata.FMTE
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Endpoint: path, Status: env.Metadata.FMTY, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Newf(apperrors.ErrTransient, path, "decoding response data: %v", err)
	}
	c.logger.Debug("api call completed", "endpoint", path, "took", time.Since(start))
	return nil
}
