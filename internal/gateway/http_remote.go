package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"go-pos-sync/internal/models"
)

// apiError is the remote's error body.
type apiError struct {
	Error string     `json:"error"`
	Items []Shortage `json:"items"`
}

// HTTPRemote talks to the remote store's JSON API.
type HTTPRemote struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPRemote{client: client}
}

func (r *HTTPRemote) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

func (r *HTTPRemote) request(ctx context.Context) *resty.Request {
	req := r.client.R().SetContext(ctx)
	r.mu.RLock()
	if r.token != "" {
		req.SetAuthToken(r.token)
	}
	r.mu.RUnlock()
	return req
}

// do executes the request and classifies the answer.
func (r *HTTPRemote) do(req *resty.Request, method, path string, out interface{}) error {
	var apiErr apiError
	req.SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrOffline, method, path, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := apiErr.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	switch resp.StatusCode() {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return &RejectedError{Status: resp.StatusCode(), Message: msg, Items: apiErr.Items}
	default:
		return &StatusError{Status: resp.StatusCode(), Message: msg}
	}
}

func (r *HTTPRemote) Health(ctx context.Context) error {
	return r.do(r.request(ctx), http.MethodGet, "/health", nil)
}

func (r *HTTPRemote) Login(ctx context.Context, userID, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"userId": userID, "password": password}
	if err := r.do(r.request(ctx).SetBody(body), http.MethodPost, "/login", &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (r *HTTPRemote) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := r.do(r.request(ctx), http.MethodGet, "/api/products", &out)
	return out, err
}

func (r *HTTPRemote) ListSales(ctx context.Context) ([]models.Sale, error) {
	var out []models.Sale
	err := r.do(r.request(ctx), http.MethodGet, "/api/sales", &out)
	return out, err
}

func (r *HTTPRemote) ListShifts(ctx context.Context) ([]models.Shift, error) {
	var out []models.Shift
	err := r.do(r.request(ctx), http.MethodGet, "/api/shifts", &out)
	return out, err
}

func (r *HTTPRemote) ListStockLogs(ctx context.Context) ([]models.StockLog, error) {
	var out []models.StockLog
	err := r.do(r.request(ctx), http.MethodGet, "/api/stock-logs", &out)
	return out, err
}

func (r *HTTPRemote) PostSale(ctx context.Context, sale models.Sale) (*models.Sale, error) {
	var out models.Sale
	if err := r.do(r.request(ctx).SetBody(sale), http.MethodPost, "/api/sales", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRemote) PostProduct(ctx context.Context, payload ProductPayload) (*models.Product, error) {
	var out models.Product
	if err := r.do(r.request(ctx).SetBody(payload), http.MethodPost, "/api/products", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProduct treats an already missing product as deleted.
func (r *HTTPRemote) DeleteProduct(ctx context.Context, id string) error {
	req := r.request(ctx).SetPathParam("id", id)
	err := r.do(req, http.MethodDelete, "/api/products/{id}", nil)
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (r *HTTPRemote) PostShift(ctx context.Context, shift models.Shift) (*models.Shift, error) {
	var out models.Shift
	if err := r.do(r.request(ctx).SetBody(shift), http.MethodPost, "/api/shifts", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *HTTPRemote) PostStockLog(ctx context.Context, entry models.StockLog) (*models.StockLog, error) {
	var out models.StockLog
	if err := r.do(r.request(ctx).SetBody(entry), http.MethodPost, "/api/stock-logs", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
