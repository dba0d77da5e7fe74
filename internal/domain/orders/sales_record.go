package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/picksync/backend/internal/domain/shared"
)

// SalesRecord is the revenue side effect of a first feed sighting: the order
// is a committed transaction the moment it appears, not when it ships.
type SalesRecord struct {
	shared.BaseEntity
	SKU         string          `gorm:"column:sku;not null;index"`
	SoldDate    time.Time       `gorm:"column:sold_date;type:date;not null"`
	GroupID     string          `gorm:"column:group_id"`
	OrderNum    string          `gorm:"column:order_num;not null"`
	OrderTime   string          `gorm:"column:order_time"`
	Qty         int             `gorm:"not null"`
	SoldPrice   decimal.Decimal `gorm:"type:decimal(18,4)"`
	Channel     string          `gorm:"not null"`
	PayType     string
	ProductName string
	Brand       string
}

// TableName returns the table name for GORM
func (SalesRecord) TableName() string {
	return "sales_records"
}
