package marketplace

// Order is the subset of GET /orders/{id} used by the service.
type Order struct {
	ID           int64          `json:"id"`
	Status       string         `json:"status"`
	DateClosed   string         `json:"date_closed"`
	DateCreated  string         `json:"date_created"`
	TotalAmount  *float64       `json:"total_amount"`
	ShippingCost *float64       `json:"shipping_cost"`
	PackID       *int64         `json:"pack_id"`
	OrderItems   []OrderItem    `json:"order_items"`
	Payments     []OrderPayment `json:"payments"`
	Shipping     struct {
		ID *int64 `json:"id"`
	} `json:"shipping"`
	Buyer struct {
		ID       int64  `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"buyer"`
	Seller struct {
		ID int64 `json:"id"`
	} `json:"seller"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	Item struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		SellerSKU string `json:"seller_sku"`
	} `json:"item"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	SaleFee   *float64 `json:"sale_fee"`
}

// OrderPayment is the payment summary embedded in an order.
type OrderPayment struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// PaymentApproved is the payment status counted towards proceeds.
const PaymentApproved = "approved"

// BillingInfo is GET /orders/{id}/billing_info (x-version 2).
type BillingInfo struct {
	Buyer struct {
		BillingInfo BuyerBilling `json:"billing_info"`
	} `json:"buyer"`
}

// BuyerBilling holds the buyer's tax and address data.
type BuyerBilling struct {
	Name           string `json:"name"`
	LastName       string `json:"last_name"`
	Identification struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	} `json:"identification"`
	Address struct {
		StreetName   string `json:"street_name"`
		StreetNumber string `json:"street_number"`
		CityName     string `json:"city_name"`
		State        struct {
			Name string `json:"name"`
		} `json:"state"`
		ZipCode string `json:"zip_code"`
	} `json:"address"`
}

// LeadTime is GET /shipments/{id}/lead_time.
type LeadTime struct {
	EstimatedDeliveryFinal struct {
		Date string `json:"date"`
	} `json:"estimated_delivery_final"`
}

// Payment is the payment detail.
type Payment struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	CouponAmount       float64 `json:"coupon_amount"`
	TransactionDetails struct {
		NetReceivedAmount float64 `json:"net_received_amount"`
	} `json:"transaction_details"`
	ChargesDetails []Charge `json:"charges_details"`
}

// ChargeTypeTax marks a tax charge.
const ChargeTypeTax = "tax"

// Charge is one charge applied to a payment.
type Charge struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Amounts struct {
		Original float64 `json:"original"`
		Refunded float64 `json:"refunded"`
	} `json:"amounts"`
}

// Item is GET /items/{id}.
type Item struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	AvailableQuantity int     `json:"available_quantity"`
	Status            string  `json:"status"`
	SellerSKU         string  `json:"seller_sku"`
}
