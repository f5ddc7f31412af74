package enums

// RemovalReason explains why a downstream listing became a removal candidate.
type RemovalReason string

const (
	RemovalReasonVanished  RemovalReason = "vanished"
	RemovalReasonStockZero RemovalReason = "stock_zero"
)
