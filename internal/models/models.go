package models

import (
	"time"
)

// Beneficiary - who gets credited with a product's margin
type Beneficiary string

const (
	BeneficiaryA      Beneficiary = "A"
	BeneficiaryB      Beneficiary = "B"
	BeneficiaryShared Beneficiary = "shared"
)

func (b Beneficiary) Valid() bool {
	switch b {
	case BeneficiaryA, BeneficiaryB, BeneficiaryShared:
		return true
	}
	return false
}

// Origin records whether the device had connectivity when the sale was rung up.
type Origin string

const (
	OriginOnline  Origin = "online"
	OriginOffline Origin = "offline"
)

// User - An operator of the shop (passwords are placeholders)
type User struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"size:100" json:"name"`
	Avatar       string    `json:"avatar"`
	PasswordHash string    `json:"-"` // Never return this in JSON
	CreatedAt    time.Time `json:"createdAt"`
}

// Product - The Inventory. ID is generated by the client and stays stable across devices.
type Product struct {
	ID                string      `gorm:"primaryKey;size:64" json:"id"`
	Name              string      `gorm:"size:200;index" json:"name"`
	Brand             string      `gorm:"size:100" json:"brand"`
	Description       string      `json:"description"`
	Cost              float64     `json:"cost"`
	Price             float64     `json:"price"`
	Quantity          int         `json:"quantity"`
	LowStockThreshold int         `json:"lowStockThreshold"`
	Beneficiary       Beneficiary `gorm:"size:16" json:"beneficiary"`
	Barcode           *string     `gorm:"size:64" json:"barcode,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// SaleItem - one line of a sale. Name and price are snapshots taken at sale time.
type SaleItem struct {
	ID          uint    `gorm:"primaryKey" json:"-"`
	SaleID      string  `gorm:"size:64;index" json:"-"`
	ProductID   string  `gorm:"size:64" json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Subtotal    float64 `json:"subtotal"`
}

// Sale - The Transaction Header.
// ID is generated on the device and is the deduplication key: the primary key
// doubles as the uniqueness constraint the reconciliation relies on.
type Sale struct {
	ID        string     `gorm:"primaryKey;size:64" json:"id"`
	Items     []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
	Total     float64    `json:"total"`
	UserID    string     `gorm:"size:64" json:"userId"`
	UserName  string     `gorm:"size:100" json:"userName"`
	Origin    Origin     `gorm:"size:16" json:"origin"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
	Synced    bool       `json:"synced"`
}

type ShiftStatus string

const (
	ShiftActive ShiftStatus = "active"
	ShiftClosed ShiftStatus = "closed"
)

// ProfitByBeneficiary holds the running profit sums of a shift.
type ProfitByBeneficiary struct {
	A      float64 `json:"A"`
	B      float64 `json:"B"`
	Shared float64 `json:"shared"`
}

// Total is A + B + Shared.
func (p ProfitByBeneficiary) Total() float64 {
	return p.A + p.B + p.Shared
}

// Shift - an operator's working session. Sales are embedded as a JSON column.
type Shift struct {
	ID                  string              `gorm:"primaryKey;size:64" json:"id"`
	UserID              string              `gorm:"size:64" json:"userId"`
	UserName            string              `gorm:"size:100" json:"userName"`
	StartTime           time.Time           `gorm:"index" json:"startTime"`
	EndTime             *time.Time          `json:"endTime,omitempty"`
	Status              ShiftStatus         `gorm:"size:16;index" json:"status"`
	Sales               []Sale              `gorm:"serializer:json;type:longtext" json:"sales"`
	TotalSales          float64             `json:"totalSales"`
	TotalProfit         float64             `json:"totalProfit"`
	ProfitByBeneficiary ProfitByBeneficiary `gorm:"serializer:json;type:text" json:"profitByBeneficiary"`
}

type StockAction string

const (
	ActionAdd         StockAction = "add"
	ActionRemove      StockAction = "remove"
	ActionUpdatePrice StockAction = "update_price"
	ActionUpdateCost  StockAction = "update_cost"
	ActionCreate      StockAction = "create"
)

func (a StockAction) Valid() bool {
	switch a {
	case ActionAdd, ActionRemove, ActionUpdatePrice, ActionUpdateCost, ActionCreate:
		return true
	}
	return false
}

// StockLog - audit entry for a manual product edit. Append-only.
type StockLog struct {
	ID            string      `gorm:"primaryKey;size:64" json:"id"`
	ProductID     string      `gorm:"size:64;index" json:"productId"`
	ProductName   string      `json:"productName"`
	Action        StockAction `gorm:"size:32" json:"action"`
	PreviousValue float64     `json:"previousValue"`
	NewValue      float64     `json:"newValue"`
	UserID        string      `gorm:"size:64" json:"userId"`
	UserName      string      `gorm:"size:100" json:"userName"`
	CreatedAt     time.Time   `gorm:"index" json:"createdAt"`
}
