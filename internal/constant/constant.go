package constant

const (
	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"

	TradingMode = "paper"

	OrderStreamName          = "orders"
	OrderStreamSubjectAll    = "orders.*"
	OrderStreamSubjectPlaced = "orders.placed"
)
