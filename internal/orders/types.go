package orders

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a stored order.
type State string

// Order states. Cancelled and Other are terminal.
const (
	StateUnknown   State = "unknown"
	StatePending   State = "pending"
	StatePaid      State = "paid"
	StateCancelled State = "cancelled"
	StateOther     State = "other"
)

// ParseState maps a marketplace order status onto a State.
func ParseState(status string) State {
	switch status {
	case "":
		return StateUnknown
	case "paid":
		return StatePaid
	case "cancelled":
		return StateCancelled
	case "payment_required", "payment_in_process", "partially_paid", "confirmed":
		return StatePending
	default:
		return StateOther
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateOther
}

// Money is a nullable decimal amount. A missing upstream value is not zero.
type Money struct {
	decimal.NullDecimal
}

// NewMoney returns a valid Money holding d.
func NewMoney(d decimal.Decimal) Money {
	return Money{decimal.NullDecimal{Decimal: d, Valid: true}}
}

// MoneyFromFloat returns a valid Money from a float upstream amount.
func MoneyFromFloat(f float64) Money {
	return NewMoney(decimal.NewFromFloat(f))
}

// String renders the amount with two decimals, or "" when null.
func (m Money) String() string {
	if !m.Valid {
		return ""
	}
	return m.Decimal.StringFixed(2)
}

// MarshalDynamoDBAttributeValue stores the amount as a number, or NULL.
func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if !m.Valid {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return &types.AttributeValueMemberN{Value: m.Decimal.String()}, nil
}

// UnmarshalDynamoDBAttributeValue reads a number, numeric string or NULL.
func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		*m = Money{}
		return nil
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	default:
		return fmt.Errorf("unsupported attribute type %T for money", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse money %q: %w", raw, err)
	}
	*m = NewMoney(d)
	return nil
}

// Order represents the item stored in the orders DynamoDB table.
type Order struct {
	SaleNumber           string `dynamodbav:"sale_number"` // PK
	State                State  `dynamodbav:"order_state"`
	ProcessCorrelationID string `dynamodbav:"process_correlation_id,omitempty"`

	SaleType           string     `dynamodbav:"sale_type"`
	ProductName        string     `dynamodbav:"product_name,omitempty"`
	SKU                string     `dynamodbav:"sku,omitempty"`
	ItemID             string     `dynamodbav:"item_id,omitempty"`
	Quantity           int        `dynamodbav:"quantity"`
	SalePrice          Money      `dynamodbav:"sale_price"`
	NetProceeds        Money      `dynamodbav:"net_proceeds"`
	MarketplaceFee     Money      `dynamodbav:"marketplace_fee"`
	CouponContribution Money      `dynamodbav:"coupon_contribution"`
	ShippingCost       Money      `dynamodbav:"shipping_cost"`
	Taxes              Money      `dynamodbav:"taxes"`
	SoldAt             *time.Time `dynamodbav:"sold_at,omitempty"`
	DeliveryEstimate   *time.Time `dynamodbav:"delivery_estimate,omitempty"`
	MarketplaceLink    string     `dynamodbav:"marketplace_link,omitempty"`
	ExternalLink       string     `dynamodbav:"external_link,omitempty"`

	BuyerTaxID    string `dynamodbav:"buyer_tax_id,omitempty"`
	RecipientName string `dynamodbav:"recipient_name,omitempty"`
	Address       string `dynamodbav:"address,omitempty"`
	City          string `dynamodbav:"city,omitempty"`
	Province      string `dynamodbav:"province,omitempty"`
	PostalCode    string `dynamodbav:"postal_code,omitempty"`
	BuyerID       string `dynamodbav:"buyer_id,omitempty"`
	SellerID      string `dynamodbav:"seller_id,omitempty"`
	PackID        string `dynamodbav:"pack_id,omitempty"`

	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}
