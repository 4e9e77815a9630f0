package model

import "time"

const (
	ProductActive   = "ACTIVE"
	ProductInactive = "INACTIVE"
	ProductSoldOut  = "SOLD_OUT"
)

type Product struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:128"`
	Category  string    `json:"category" gorm:"size:64;index"`
	Price     int64     `json:"price"`
	Status    string    `json:"status" gorm:"size:20;default:ACTIVE"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
