package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Package is a purchasable CID bundle.
type Package struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	CIDAmount int64           `db:"cid_amount" json:"cid_amount"`
	PriceUSD  decimal.Decimal `db:"price_usd" json:"price_usd"`
	IsActive  bool            `db:"is_active" json:"is_active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// DefaultPackages is the seed catalog. The migrate command inserts these
// once; operators manage the live rows afterwards.
func DefaultPackages() []Package {
	prices := []struct {
		cid   int64
		price string
	}{
		{30, "3.00"},
		{50, "4.00"},
		{100, "7.00"},
		{500, "30.00"},
		{1000, "55.00"},
		{5000, "250.00"},
		{10000, "450.00"},
	}

	packages := make([]Package, 0, len(prices))
	for _, p := range prices {
		packages = append(packages, Package{
			Name:      fmt.Sprintf("%d CID", p.cid),
			CIDAmount: p.cid,
			PriceUSD:  decimal.RequireFromString(p.price),
			IsActive:  true,
		})
	}
	return packages
}
