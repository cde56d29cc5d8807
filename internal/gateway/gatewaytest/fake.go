// Package gatewaytest provides an in-memory Remote for device-side tests.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/models"
)

// FakeRemote behaves like the remote store: sales are accepted once per id and
// decrement stock, short stock is rejected with 422.
type FakeRemote struct {
	mu        sync.Mutex
	offline   bool
	failNext  int
	token     string
	password  string
	calls     map[string]int
	products  map[string]models.Product
	sales     map[string]models.Sale
	shifts    map[string]models.Shift
	stockLogs map[string]models.StockLog

	// With requireAuth set, only tokens handed out by Login are accepted.
	requireAuth bool
	issued      map[string]bool
}

func NewFakeRemote(products ...models.Product) *FakeRemote {
	f := &FakeRemote{
		calls:     make(map[string]int),
		password:  "1234",
		products:  make(map[string]models.Product),
		sales:     make(map[string]models.Sale),
		shifts:    make(map[string]models.Shift),
		stockLogs: make(map[string]models.StockLog),
		issued:    make(map[string]bool),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

// SetOffline makes every call fail with gateway.ErrOffline.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	f.offline = offline
	f.mu.Unlock()
}

// SetPassword changes the password Login accepts.
func (f *FakeRemote) SetPassword(password string) {
	f.mu.Lock()
	f.password = password
	f.mu.Unlock()
}

// RequireAuth makes every collection call answer 401 without a valid token.
func (f *FakeRemote) RequireAuth(on bool) {
	f.mu.Lock()
	f.requireAuth = on
	f.mu.Unlock()
}

// ExpireTokens revokes every token handed out so far.
func (f *FakeRemote) ExpireTokens() {
	f.mu.Lock()
	f.issued = make(map[string]bool)
	f.mu.Unlock()
}

// FailNext makes the next n calls fail as if the connection dropped.
func (f *FakeRemote) FailNext(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

// Calls reports how many times method was invoked.
func (f *FakeRemote) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeRemote) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *FakeRemote) Product(id string) (models.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	return p, ok
}

func (f *FakeRemote) PutProduct(p models.Product) {
	f.mu.Lock()
	f.products[p.ID] = p
	f.mu.Unlock()
}

func (f *FakeRemote) SaleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sales)
}

func (f *FakeRemote) Shift(id string) (models.Shift, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shifts[id]
	return s, ok
}

// enter records the call and returns the transport error to simulate, if any.
// Callers hold f.mu.
func (f *FakeRemote) enter(method string) error {
	f.calls[method]++
	if f.offline {
		return fmt.Errorf("%w: %s", gateway.ErrOffline, method)
	}
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("%w: %s (dropped)", gateway.ErrOffline, method)
	}
	if f.requireAuth && method != "Health" && method != "Login" && !f.issued[f.token] {
		return &gateway.StatusError{Status: http.StatusUnauthorized, Message: "Authorization header is required"}
	}
	return nil
}

func (f *FakeRemote) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Health")
}

func (f *FakeRemote) Login(ctx context.Context, userID, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Login"); err != nil {
		return "", err
	}
	if password != f.password {
		return "", &gateway.StatusError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}
	token := "token-" + userID
	f.issued[token] = true
	return token, nil
}

func (f *FakeRemote) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *FakeRemote) ListProducts(ctx context.Context) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListProducts"); err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeRemote) ListSales(ctx context.Context) ([]models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListSales"); err != nil {
		return nil, err
	}
	out := make([]models.Sale, 0, len(f.sales))
	for _, s := range f.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeRemote) ListShifts(ctx context.Context) ([]models.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListShifts"); err != nil {
		return nil, err
	}
	out := make([]models.Shift, 0, len(f.shifts))
	for _, s := range f.shifts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (f *FakeRemote) ListStockLogs(ctx context.Context) ([]models.StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListStockLogs"); err != nil {
		return nil, err
	}
	out := make([]models.StockLog, 0, len(f.stockLogs))
	for _, l := range f.stockLogs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeRemote) PostSale(ctx context.Context, sale models.Sale) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PostSale"); err != nil {
		return nil, err
	}
	if stored, ok := f.sales[sale.ID]; ok {
		return &stored, nil
	}

	var short []gateway.Shortage
	for id, qty := range sale.RequestedQuantities() {
		p, ok := f.products[id]
		if !ok {
			short = append(short, gateway.Shortage{ProductID: id, Requested: qty, Missing: true})
			continue
		}
		if p.Quantity < qty {
			short = append(short, gateway.Shortage{ProductID: id, ProductName: p.Name, Requested: qty, Available: p.Quantity})
		}
	}
	if len(short) > 0 {
		return nil, &gateway.RejectedError{Status: http.StatusUnprocessableEntity, Message: "insufficient stock", Items: short}
	}
	for id, qty := range sale.RequestedQuantities() {
		p := f.products[id]
		p.Quantity -= qty
		f.products[id] = p
	}
	sale.Synced = true
	f.sales[sale.ID] = sale
	return &sale, nil
}

func (f *FakeRemote) PostProduct(ctx context.Context, payload gateway.ProductPayload) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PostProduct"); err != nil {
		return nil, err
	}
	if payload.Quantity < 0 {
		return nil, &gateway.RejectedError{Status: http.StatusBadRequest, Message: "quantity cannot be negative"}
	}
	f.products[payload.ID] = payload.Product
	p := payload.Product
	return &p, nil
}

func (f *FakeRemote) DeleteProduct(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteProduct"); err != nil {
		return err
	}
	delete(f.products, id)
	return nil
}

func (f *FakeRemote) PostShift(ctx context.Context, shift models.Shift) (*models.Shift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PostShift"); err != nil {
		return nil, err
	}
	if stored, ok := f.shifts[shift.ID]; ok && stored.Status == models.ShiftClosed {
		return &stored, nil
	}
	f.shifts[shift.ID] = shift
	return &shift, nil
}

func (f *FakeRemote) PostStockLog(ctx context.Context, entry models.StockLog) (*models.StockLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PostStockLog"); err != nil {
		return nil, err
	}
	if stored, ok := f.stockLogs[entry.ID]; ok {
		return &stored, nil
	}
	f.stockLogs[entry.ID] = entry
	return &entry, nil
}

var _ gateway.Remote = (*FakeRemote)(nil)
