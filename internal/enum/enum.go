package enum

// ── Group A: Remote state machines (owned by the backend) ──

const (
	PreorderStatusPreorder   = "preorder"
	PreorderStatusInRegister = "in_register"
	PreorderStatusInKitchen  = "in_kitchen"
	PreorderStatusReady      = "ready"
	PreorderStatusDelivered  = "delivered"
	PreorderStatusPaid       = "paid"
)

const (
	PreorderOriginWeb    = "web"
	PreorderOriginSystem = "system"
)

const (
	ComandaStatusPending    = "pending"
	ComandaStatusInProgress = "in_progress"
	ComandaStatusFinished   = "finished"
)

// ── Group B: Register-side vocabulary ──

const (
	ServiceTypeDineIn  = "dine_in"
	ServiceTypeTakeOut = "take_out"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	// PaymentMethodPending marks a sale created for "prepare now, pay later".
	PaymentMethodPending = "pending"
)

const (
	DiscountKindPercentage = "percentage"
	DiscountKindAmount     = "amount"
)

const (
	TipKindPercentage = "percentage"
	TipKindCustom     = "custom"
)

// IsServiceType reports whether s is a known service type.
func IsServiceType(s string) bool {
	switch s {
	case ServiceTypeDineIn, ServiceTypeTakeOut:
		return true
	}
	return false
}

// IsSettlingPaymentMethod reports whether s can settle a sale.
// PaymentMethodPending never does.
func IsSettlingPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

// ── Group C: Staff roles carried in cashier tokens ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)
