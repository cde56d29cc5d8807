// Package audit keeps the trail of manual product edits. Sale-driven stock
// decrements never pass through here.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-pos-sync/internal/models"
	"go-pos-sync/internal/repository"
)

// ErrInvalidLog marks a payload missing id, productId or a known action.
var ErrInvalidLog = errors.New("invalid stock log")

// Editor identifies who made a manual change.
type Editor struct {
	UserID   string
	UserName string
	// EditID makes entry ids deterministic so a replayed edit collapses onto
	// the entries it already produced. Empty means random ids.
	EditID string
}

// EntryID derives the id of the entry for one changed field of an edit.
func EntryID(editID, productID string, action models.StockAction) string {
	if editID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(editID+":"+productID+":"+string(action))).String()
}

// RecordManualEdit compares previous against the edited product and returns
// one entry per changed field. A nil previous means the product is new and
// yields a single create entry.
func RecordManualEdit(product models.Product, previous *models.Product, editor Editor, now time.Time) []models.StockLog {
	entry := func(action models.StockAction, from, to float64) models.StockLog {
		return models.StockLog{
			ID:            EntryID(editor.EditID, product.ID, action),
			ProductID:     product.ID,
			ProductName:   product.Name,
			Action:        action,
			PreviousValue: from,
			NewValue:      to,
			UserID:        editor.UserID,
			UserName:      editor.UserName,
			CreatedAt:     now,
		}
	}

	if previous == nil {
		return []models.StockLog{entry(models.ActionCreate, 0, float64(product.Quantity))}
	}

	var entries []models.StockLog
	switch {
	case product.Quantity > previous.Quantity:
		entries = append(entries, entry(models.ActionAdd, float64(previous.Quantity), float64(product.Quantity)))
	case product.Quantity < previous.Quantity:
		entries = append(entries, entry(models.ActionRemove, float64(previous.Quantity), float64(product.Quantity)))
	}
	if !models.Money(product.Price).Equal(models.Money(previous.Price)) {
		entries = append(entries, entry(models.ActionUpdatePrice, previous.Price, product.Price))
	}
	if !models.Money(product.Cost).Equal(models.Money(previous.Cost)) {
		entries = append(entries, entry(models.ActionUpdateCost, previous.Cost, product.Cost))
	}
	return entries
}

// Validate rejects payloads missing the fields the trail is keyed on.
func Validate(entry models.StockLog) error {
	switch {
	case strings.TrimSpace(entry.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidLog)
	case strings.TrimSpace(entry.ProductID) == "":
		return fmt.Errorf("%w: productId is required", ErrInvalidLog)
	case entry.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidLog)
	case !entry.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidLog, entry.Action)
	}
	return nil
}

// Accept stores entry unless an entry with the same id exists, in which case
// the stored one is returned unchanged. duplicate reports which happened.
func Accept(ctx context.Context, repo repository.Repository, entry models.StockLog) (stored *models.StockLog, duplicate bool, err error) {
	if err := Validate(entry); err != nil {
		return nil, false, err
	}

	existing, err := repo.FindStockLog(ctx, entry.ID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := repo.CreateStockLog(ctx, &entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost the race against a concurrent insert of the same id.
			winner, ferr := repo.FindStockLog(ctx, entry.ID)
			if ferr == nil {
				return winner, true, nil
			}
		}
		return nil, false, err
	}

	log.Printf("📝 [AUDIT] %s %s %v -> %v by %s", entry.Action, entry.ProductName, entry.PreviousValue, entry.NewValue, entry.UserName)
	return &entry, false, nil
}
