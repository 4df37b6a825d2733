package models

// Fill is the executed result of a market order. It is not persisted on its own;
// the executor copies it into positions and trades.
type Fill struct {
	Symbol        string
	Side          string
	OrderID       string
	ClientOrderID string
	Price         float64
	Quantity      float64
	QuoteQuantity float64
	Commission    float64
}
