package database

import (
	"context"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/types"
	"github.com/saiset-co/sai-content/utils"
)

type HTTPConfig struct {
	BaseURL        string                `json:"base_url"`
	Token          string                `json:"token"`
	Timeout        string                `json:"timeout"`
	Retries        int                   `json:"retries"`
	RetryBackoff   string                `json:"retry_backoff"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker"`
}

type queryResponse struct {
	Documents []types.Document `json:"documents"`
}

type createResponse struct {
	ID string `json:"id"`
}

// HTTPStore talks to the admin document service over its REST API:
//
//	POST   /collections/{c}/query
//	GET    /collections/{c}/documents/{id}
//	POST   /collections/{c}/documents
//	PATCH  /collections/{c}/documents/{id}
//	DELETE /collections/{c}/documents/{id}
type HTTPStore struct {
	lifecycle
	client  *fasthttp.Client
	logger  types.Logger
	config  *HTTPConfig
	baseURL string
	timeout time.Duration
	backoff time.Duration
	breaker *circuitBreaker
}

func NewHTTPStore(logger types.Logger, config *types.RemoteConfig) (*HTTPStore, error) {
	return newHTTPStoreWithClient(logger, config, nil)
}

func newHTTPStoreWithClient(logger types.Logger, config *types.RemoteConfig, client *fasthttp.Client) (*HTTPStore, error) {
	httpConfig := &HTTPConfig{Retries: 2}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, httpConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal http remote config")
		}
	}

	if httpConfig.BaseURL == "" {
		return nil, types.Errorf(types.ErrConfigInvalid, "remote.config.base_url is required")
	}
	if _, err := url.Parse(httpConfig.BaseURL); err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "remote.config.base_url: %v", err)
	}

	timeout, err := parseDuration(httpConfig.Timeout, 10*time.Second)
	if err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "remote.config.timeout: %v", err)
	}

	backoff, err := parseDuration(httpConfig.RetryBackoff, 500*time.Millisecond)
	if err != nil {
		return nil, types.Errorf(types.ErrConfigInvalid, "remote.config.retry_backoff: %v", err)
	}

	breaker, err := newCircuitBreaker(httpConfig.CircuitBreaker, logger)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		}
	}

	store := &HTTPStore{
		client:  client,
		logger:  logger,
		config:  httpConfig,
		baseURL: httpConfig.BaseURL,
		timeout: timeout,
		backoff: backoff,
		breaker: breaker,
	}

	store.init()
	return store, nil
}

func (h *HTTPStore) Start() error {
	if !h.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	h.logger.Info("HTTP document store started", zap.String("base_url", h.baseURL))
	return nil
}

func (h *HTTPStore) Stop() error {
	if !h.transitionState(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	h.client.CloseIdleConnections()
	h.logger.Info("HTTP document store stopped")
	return nil
}

func (h *HTTPStore) Query(ctx context.Context, request types.QueryRequest) ([]types.Document, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	body, status, err := h.call(ctx, fasthttp.MethodPost, h.collectionPath(request.Collection, "query"), request)
	if err != nil {
		return nil, err
	}
	if status != fasthttp.StatusOK {
		return nil, types.Errorf(types.ErrDatabaseRequestFailed, "query %s: HTTP %d", request.Collection, status)
	}

	var response queryResponse
	if err := utils.Unmarshal(body, &response); err != nil {
		return nil, types.Errorf(types.ErrDatabaseResponseInvalid, "%v", err)
	}

	if response.Documents == nil {
		response.Documents = []types.Document{}
	}

	return response.Documents, nil
}

func (h *HTTPStore) GetByID(ctx context.Context, collection, id string) (types.Document, bool, error) {
	if collection == "" {
		return nil, false, types.ErrDatabaseCollectionEmpty
	}
	if id == "" {
		return nil, false, types.ErrDocumentIDEmpty
	}

	body, status, err := h.call(ctx, fasthttp.MethodGet, h.documentPath(collection, id), nil)
	if err != nil {
		return nil, false, err
	}

	switch status {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, types.Errorf(types.ErrDatabaseRequestFailed, "get %s/%s: HTTP %d", collection, id, status)
	}

	var doc types.Document
	if err := utils.Unmarshal(body, &doc); err != nil {
		return nil, false, types.Errorf(types.ErrDatabaseResponseInvalid, "%v", err)
	}

	return doc, true, nil
}

func (h *HTTPStore) Create(ctx context.Context, collection string, fields types.Document) (string, error) {
	if collection == "" {
		return "", types.ErrDatabaseCollectionEmpty
	}

	body, status, err := h.call(ctx, fasthttp.MethodPost, h.collectionPath(collection, "documents"), fields)
	if err != nil {
		return "", err
	}
	if status != fasthttp.StatusOK && status != fasthttp.StatusCreated {
		return "", types.Errorf(types.ErrDatabaseRequestFailed, "create in %s: HTTP %d", collection, status)
	}

	var response createResponse
	if err := utils.Unmarshal(body, &response); err != nil || response.ID == "" {
		return "", types.Errorf(types.ErrDatabaseResponseInvalid, "create in %s: missing id", collection)
	}

	return response.ID, nil
}

func (h *HTTPStore) Update(ctx context.Context, collection, id string, fields types.Document) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	_, status, err := h.call(ctx, fasthttp.MethodPatch, h.documentPath(collection, id), fields)
	if err != nil {
		return err
	}

	return mutationStatus("update", collection, id, status)
}

func (h *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	if id == "" {
		return types.ErrDocumentIDEmpty
	}

	_, status, err := h.call(ctx, fasthttp.MethodDelete, h.documentPath(collection, id), nil)
	if err != nil {
		return err
	}

	return mutationStatus("delete", collection, id, status)
}

func mutationStatus(operation, collection, id string, status int) error {
	switch {
	case status == fasthttp.StatusNotFound:
		return types.Errorf(types.ErrDocumentNotFound, "%s/%s", collection, id)
	case status >= 200 && status < 300:
		return nil
	default:
		return types.Errorf(types.ErrDatabaseRequestFailed, "%s %s/%s: HTTP %d", operation, collection, id, status)
	}
}

func (h *HTTPStore) collectionPath(collection, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + "/" + suffix
}

func (h *HTTPStore) documentPath(collection, id string) string {
	return h.collectionPath(collection, "documents") + "/" + url.PathEscape(id)
}

// call performs the request with retries. Client errors other than 408 and
// 429 are returned to the caller as a status without retrying.
func (h *HTTPStore) call(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	if h.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.Token)
	}

	if payload != nil {
		data, err := utils.Marshal(payload)
		if err != nil {
			return nil, 0, types.WrapError(err, "failed to marshal request")
		}
		req.SetBody(data)
		req.Header.SetContentType("application/json")
	}

	var lastErr error

	for attempt := 0; attempt <= h.config.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		if !h.breaker.CanExecute() {
			return nil, 0, types.Errorf(types.ErrDatabaseRequestFailed, "circuit breaker open")
		}

		resp.Reset()
		err := h.client.DoTimeout(req, resp, h.attemptTimeout(ctx))
		status := resp.StatusCode()

		if err == nil && !retryableStatus(status) {
			h.breaker.RecordSuccess()

			body := make([]byte, len(resp.Body()))
			copy(body, resp.Body())
			return body, status, nil
		}

		h.breaker.RecordFailure()

		lastErr = err
		if err == nil {
			lastErr = types.Errorf(types.ErrDatabaseRequestFailed, "HTTP %d", status)
		}

		if attempt == h.config.Retries {
			break
		}

		backoff := time.Duration(attempt+1) * h.backoff
		h.logger.Debug("Retrying remote request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	return nil, 0, types.Errorf(types.ErrDatabaseRequestFailed, "%s %s: %d attempts: %v", method, path, h.config.Retries+1, lastErr)
}

func (h *HTTPStore) attemptTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < h.timeout {
			return remaining
		}
	}
	return h.timeout
}

func retryableStatus(status int) bool {
	switch status {
	case fasthttp.StatusRequestTimeout, fasthttp.StatusTooManyRequests,
		fasthttp.StatusBadGateway, fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	default:
		return status >= 500
	}
}
