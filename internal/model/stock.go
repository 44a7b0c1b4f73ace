package model

// StockUpdate is pushed when a product's stock level changes. It is
// consumed by the catalog views, not by chat or notifications.
type StockUpdate struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
}
