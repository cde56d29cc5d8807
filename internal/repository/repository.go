package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate id")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the remote store's persistence boundary. Every collection is
// addressed by the client generated id.
type Repository interface {
	// Transaction runs fn against a repository bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindSale(ctx context.Context, id string) (*models.Sale, error)
	// CreateSale inserts a sale with its items; ErrDuplicate when the id is taken.
	CreateSale(ctx context.Context, sale *models.Sale) error
	ListSales(ctx context.Context, limit int) ([]models.Sale, error)

	// FindProduct loads a product; forUpdate takes a row lock where the driver supports it.
	FindProduct(ctx context.Context, id string, forUpdate bool) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	// DecrementStock lowers quantity by qty only if that keeps it non-negative.
	DecrementStock(ctx context.Context, productID string, qty int) error
	DeleteProduct(ctx context.Context, id string) error

	FindShift(ctx context.Context, id string) (*models.Shift, error)
	CreateShift(ctx context.Context, shift *models.Shift) error
	SaveShift(ctx context.Context, shift *models.Shift) error
	ListShifts(ctx context.Context) ([]models.Shift, error)

	FindStockLog(ctx context.Context, id string) (*models.StockLog, error)
	CreateStockLog(ctx context.Context, entry *models.StockLog) error
	ListStockLogs(ctx context.Context, limit int) ([]models.StockLog, error)

	FindUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// GormRepository implements Repository on top of gorm.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// DB exposes the handle for reporting queries.
func (r *GormRepository) DB() *gorm.DB {
	return r.db
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func translate(err error, what, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %s: %w", what, id, ErrDuplicate)
	default:
		return fmt.Errorf("%s %s: %w", what, id, err)
	}
}

func (r *GormRepository) FindSale(ctx context.Context, id string) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&sale).Error
	if err != nil {
		return nil, translate(err, "sale", id)
	}
	return &sale, nil
}

func (r *GormRepository) CreateSale(ctx context.Context, sale *models.Sale) error {
	// GORM inserts the items in the same statement batch.
	return translate(r.db.WithContext(ctx).Create(sale).Error, "sale", sale.ID)
}

func (r *GormRepository) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	q := r.db.WithContext(ctx).Preload("Items").Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

func (r *GormRepository) FindProduct(ctx context.Context, id string, forUpdate bool) (*models.Product, error) {
	var product models.Product
	q := r.db.WithContext(ctx)
	if forUpdate {
		// Lock the row to prevent race conditions
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", id).First(&product).Error; err != nil {
		return nil, translate(err, "product", id)
	}
	return &product, nil
}

func (r *GormRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *GormRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	return translate(r.db.WithContext(ctx).Create(product).Error, "product", product.ID)
}

func (r *GormRepository) UpdateProduct(ctx context.Context, product *models.Product) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"name":                product.Name,
		"brand":               product.Brand,
		"description":         product.Description,
		"cost":                product.Cost,
		"price":               product.Price,
		"quantity":            product.Quantity,
		"low_stock_threshold": product.LowStockThreshold,
		"beneficiary":         product.Beneficiary,
		"barcode":             product.Barcode,
		"updated_at":          product.UpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error, "product", product.ID)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "product", product.ID)
	}
	return nil
}

func (r *GormRepository) DecrementStock(ctx context.Context, productID string, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error, "product", productID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	return nil
}

func (r *GormRepository) DeleteProduct(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return translate(res.Error, "product", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "product", id)
	}
	return nil
}

func (r *GormRepository) FindShift(ctx context.Context, id string) (*models.Shift, error) {
	var shift models.Shift
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shift).Error; err != nil {
		return nil, translate(err, "shift", id)
	}
	return &shift, nil
}

func (r *GormRepository) CreateShift(ctx context.Context, shift *models.Shift) error {
	return translate(r.db.WithContext(ctx).Create(shift).Error, "shift", shift.ID)
}

// SaveShift inserts or fully replaces a shift.
func (r *GormRepository) SaveShift(ctx context.Context, shift *models.Shift) error {
	return translate(r.db.WithContext(ctx).Save(shift).Error, "shift", shift.ID)
}

func (r *GormRepository) ListShifts(ctx context.Context) ([]models.Shift, error) {
	var shifts []models.Shift
	if err := r.db.WithContext(ctx).Order("start_time DESC").Find(&shifts).Error; err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return shifts, nil
}

func (r *GormRepository) FindStockLog(ctx context.Context, id string) (*models.StockLog, error) {
	var entry models.StockLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, translate(err, "stock log", id)
	}
	return &entry, nil
}

func (r *GormRepository) CreateStockLog(ctx context.Context, entry *models.StockLog) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error, "stock log", entry.ID)
}

func (r *GormRepository) ListStockLogs(ctx context.Context, limit int) ([]models.StockLog, error) {
	var logs []models.StockLog
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list stock logs: %w", err)
	}
	return logs, nil
}

func (r *GormRepository) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err, "user", id)
	}
	return &user, nil
}

func (r *GormRepository) CreateUser(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error, "user", user.ID)
}
