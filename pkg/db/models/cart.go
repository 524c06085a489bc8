package models

import "time"

// Cart is the anonymous shopping cart bound to one session key.
type Cart struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID       string     `gorm:"column:session_id;not null;uniqueIndex"`
	CustomerEmail   *string    `gorm:"column:customer_email"`
	CustomerName    *string    `gorm:"column:customer_name"`
	CustomerAddress *string    `gorm:"column:customer_address"`
	Items           []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt       time.Time  `gorm:"column:expires_at;not null;index"`
}

// IsExpired reports whether the cart's expiry lies strictly before now.
func (c Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
