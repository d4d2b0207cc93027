package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Market-data error codes
const (
	CodeExchangeUnreachable Code = "EXCHANGE_UNREACHABLE"
	CodeExchangeAPIError    Code = "EXCHANGE_API_ERROR"
	CodeQuoteFetchFailed    Code = "QUOTE_FETCH_FAILED"
	CodeQuoteStale          Code = "QUOTE_STALE"
	CodeSnapshotDegraded    Code = "SNAPSHOT_DEGRADED"
	CodeUnknownPair         Code = "UNKNOWN_PAIR"

	// WebSocket feed errors
	CodeFeedConnectionError Code = "FEED_CONNECTION_ERROR"
	CodeFeedReconnecting    Code = "FEED_RECONNECTING"
	CodeFeedClosed          Code = "FEED_CLOSED"
)

// Detection and risk error codes
const (
	CodeGraphBuildFailed    Code = "GRAPH_BUILD_FAILED"
	CodeCycleInvalidated    Code = "CYCLE_INVALIDATED"
	CodePlanRejected        Code = "PLAN_REJECTED"
	CodeBelowMinProfit      Code = "BELOW_MIN_PROFIT"
	CodeOrderSizeOutOfRange Code = "ORDER_SIZE_OUT_OF_RANGE"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeSlippageExceeded    Code = "SLIPPAGE_EXCEEDED"
	CodeBalanceCommitted    Code = "BALANCE_COMMITTED"
)

// Execution error codes
const (
	CodeOrderSubmitFailed Code = "ORDER_SUBMIT_FAILED"
	CodeOrderRejected     Code = "ORDER_REJECTED"
	CodeOrderTimedOut     Code = "ORDER_TIMED_OUT"
	CodeOrderStatusFailed Code = "ORDER_STATUS_FAILED"
	CodePlanAborted       Code = "PLAN_ABORTED"
	CodePartialExecution  Code = "PARTIAL_EXECUTION"
)

// Circuit breaker errors
const (
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
