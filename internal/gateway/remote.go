package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-pos-sync/internal/models"
)

var (
	// ErrOffline means the request never got an HTTP answer.
	ErrOffline = errors.New("remote store unreachable")
	// ErrUnauthorized matches a 401: the token is missing, expired or revoked.
	ErrUnauthorized = errors.New("remote store requires login")
)

// Shortage mirrors one line of a stock rejection.
type Shortage struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
	Missing     bool   `json:"missing,omitempty"`
}

// RejectedError is a definitive refusal of a payload (bad input, unknown
// product, insufficient stock). Retrying the same payload gives the same answer
// until the remote state changes.
type RejectedError struct {
	Status  int
	Message string
	Items   []Shortage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Message)
}

// StatusError is any other non-success answer (auth, server failure).
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ProductPayload is the body of a product upsert.
type ProductPayload struct {
	models.Product
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	EditID   string `json:"editId"`
}

// Remote is the transport to the remote store collections.
type Remote interface {
	Health(ctx context.Context) error
	Login(ctx context.Context, userID, password string) (string, error)
	SetToken(token string)

	ListProducts(ctx context.Context) ([]models.Product, error)
	ListSales(ctx context.Context) ([]models.Sale, error)
	ListShifts(ctx context.Context) ([]models.Shift, error)
	ListStockLogs(ctx context.Context) ([]models.StockLog, error)

	PostSale(ctx context.Context, sale models.Sale) (*models.Sale, error)
	PostProduct(ctx context.Context, payload ProductPayload) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	PostShift(ctx context.Context, shift models.Shift) (*models.Shift, error)
	PostStockLog(ctx context.Context, entry models.StockLog) (*models.StockLog, error)
}
