package migration

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type demoProduct struct {
	name        string
	description string
	price       int64
	stock       int
}

// Local storefront demo catalog. Prices are cents.
var demoCatalog = []demoProduct{
	{name: "Monstera Deliciosa", description: "Split-leaf philodendron, 20cm pot", price: 249900, stock: 12},
	{name: "Lavanda Angustifolia", description: "English lavender, outdoor ready", price: 89900, stock: 30},
	{name: "Ficus Lyrata", description: "Fiddle-leaf fig, 1.2m tall", price: 499900, stock: 6},
	{name: "Suculenta Echeveria", description: "Echeveria mix, 8cm pot", price: 34900, stock: 50},
	{name: "Limonero en Maceta", description: "Potted lemon tree, fruit bearing", price: 699900, stock: 4},
}

// SeedDemoProducts inserts the demo catalog, skipping slugs that already
// exist so repeated boots do not duplicate rows.
func SeedDemoProducts(conn *gorm.DB, genID *snowflake.Node, now time.Time) error {
	products := make([]inventorydomain.Product, 0, len(demoCatalog))
	for _, item := range demoCatalog {
		products = append(products, inventorydomain.Product{
			ID:          genID.Generate(),
			Name:        item.name,
			Slug:        slug.Make(item.name),
			Description: item.description,
			Price:       item.price,
			Stock:       item.stock,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&products).Error
}
