package domain

type Product struct {
	ProductID string `json:"id" dynamodbav:"product_id"`
	Title     string `json:"title" dynamodbav:"title"`
	Price     int64  `json:"price" dynamodbav:"price"`
	Version   int    `json:"version" dynamodbav:"version"`
	Offer     int    `json:"offer" dynamodbav:"offer"` // percent discount, 0-100
}

// Amount is the price charged at checkout after the offer discount.
func (p *Product) Amount() int64 {
	offer := p.Offer
	if offer <= 0 {
		return p.Price
	}
	if offer > 100 {
		offer = 100
	}
	return p.Price * int64(100-offer) / 100
}
