// Package admin holds the maintenance tasks behind posctl: seeding a fresh
// remote store and checking an existing one for broken invariants.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/gorm"

	"go-pos-sync/internal/models"
	"go-pos-sync/internal/repository"
)

// SeedReport counts the records Seed created.
type SeedReport struct {
	Users    int
	Products int
}

// SampleProducts is a small starter catalogue.
func SampleProducts(now time.Time) []models.Product {
	products := []models.Product{
		{ID: "sample-arroz", Name: "Arroz 1kg", Brand: "Gallo", Cost: 900, Price: 1300, Quantity: 40, Beneficiary: models.BeneficiaryShared},
		{ID: "sample-yerba", Name: "Yerba Mate 500g", Brand: "Playadito", Cost: 1800, Price: 2600, Quantity: 25, Beneficiary: models.BeneficiaryA},
		{ID: "sample-aceite", Name: "Aceite Girasol 900ml", Brand: "Natura", Cost: 1500, Price: 2100, Quantity: 8, Beneficiary: models.BeneficiaryB},
		{ID: "sample-fideos", Name: "Fideos Tirabuzón 500g", Brand: "Matarazzo", Cost: 700, Price: 1050, Quantity: 60, Beneficiary: models.BeneficiaryShared},
	}
	for i := range products {
		products[i].LowStockThreshold = models.DefaultLowStockThreshold
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
	}
	return products
}

// Seed creates every user and product that does not exist yet. Existing rows
// are left untouched so seeding twice is harmless.
func Seed(ctx context.Context, repo repository.Repository, users []models.User, products []models.Product) (SeedReport, error) {
	var rep SeedReport
	for i := range users {
		_, err := repo.FindUser(ctx, users[i].ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return rep, err
		}
		if err := repo.CreateUser(ctx, &users[i]); err != nil {
			return rep, fmt.Errorf("seed user %s: %w", users[i].ID, err)
		}
		rep.Users++
	}
	for i := range products {
		_, err := repo.FindProduct(ctx, products[i].ID, false)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return rep, err
		}
		if err := repo.CreateProduct(ctx, &products[i]); err != nil {
			return rep, fmt.Errorf("seed product %s: %w", products[i].ID, err)
		}
		rep.Products++
	}
	log.Printf("🌱 [SEED] created %d users, %d products", rep.Users, rep.Products)
	return rep, nil
}

// Problem is one broken invariant found by Check.
type Problem struct {
	Kind   string
	ID     string
	Detail string
}

func (p Problem) String() string {
	return fmt.Sprintf("%-16s %-38s %s", p.Kind, p.ID, p.Detail)
}

// ErrProblemsFound is returned by Report when the check was not clean.
var ErrProblemsFound = errors.New("problems found")

// Report prints one line per problem and a summary to w.
func Report(w io.Writer, problems []Problem) error {
	if len(problems) == 0 {
		fmt.Fprintln(w, "✅ no problems found")
		return nil
	}
	for _, p := range problems {
		fmt.Fprintln(w, p)
	}
	fmt.Fprintf(w, "❌ %d problem(s) found\n", len(problems))
	return fmt.Errorf("%w: %d", ErrProblemsFound, len(problems))
}

const checkBatch = 200

var knownActions = []models.StockAction{
	models.ActionAdd, models.ActionRemove, models.ActionUpdatePrice, models.ActionUpdateCost, models.ActionCreate,
}

// Check scans the remote store for negative stock, sales whose total does
// not match their lines, audit entries with unknown actions and more than
// one active shift.
func Check(ctx context.Context, db *gorm.DB) ([]Problem, error) {
	db = db.WithContext(ctx)
	var problems []Problem

	var negative []models.Product
	if err := db.Where("quantity < ?", 0).Order("id").Find(&negative).Error; err != nil {
		return nil, fmt.Errorf("check products: %w", err)
	}
	for _, p := range negative {
		problems = append(problems, Problem{Kind: "negative-stock", ID: p.ID, Detail: fmt.Sprintf("%s quantity=%d", p.Name, p.Quantity)})
	}

	var batch []models.Sale
	err := db.Preload("Items").FindInBatches(&batch, checkBatch, func(tx *gorm.DB, _ int) error {
		for _, s := range batch {
			if err := s.Validate(); err != nil {
				problems = append(problems, Problem{Kind: "sale-total", ID: s.ID, Detail: err.Error()})
			}
		}
		return nil
	}).Error
	if err != nil {
		return nil, fmt.Errorf("check sales: %w", err)
	}

	var odd []models.StockLog
	if err := db.Where("action NOT IN ?", knownActions).Order("id").Find(&odd).Error; err != nil {
		return nil, fmt.Errorf("check stock logs: %w", err)
	}
	for _, l := range odd {
		problems = append(problems, Problem{Kind: "stock-log-action", ID: l.ID, Detail: fmt.Sprintf("action=%q product=%s", l.Action, l.ProductID)})
	}

	var active []models.Shift
	if err := db.Where("status = ?", models.ShiftActive).Order("start_time").Find(&active).Error; err != nil {
		return nil, fmt.Errorf("check shifts: %w", err)
	}
	if len(active) > 1 {
		for _, s := range active {
			problems = append(problems, Problem{Kind: "active-shift", ID: s.ID, Detail: fmt.Sprintf("%s started %s", s.UserName, s.StartTime.Format(time.RFC3339))})
		}
	}
	return problems, nil
}
