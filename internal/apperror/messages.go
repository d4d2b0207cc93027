package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	// Market data
	CodeExchangeUnreachable: "Exchange is unreachable",
	CodeExchangeAPIError:    "Exchange API error",
	CodeQuoteFetchFailed:    "Failed to fetch quote",
	CodeQuoteStale:          "Quote is stale",
	CodeSnapshotDegraded:    "Too many stale quotes in snapshot",
	CodeUnknownPair:         "Trading pair is not configured",

	// WebSocket feed
	CodeFeedConnectionError: "Quote feed connection error",
	CodeFeedReconnecting:    "Quote feed reconnecting",
	CodeFeedClosed:          "Quote feed connection closed",

	// Detection and risk
	CodeGraphBuildFailed:    "Price graph construction failed",
	CodeCycleInvalidated:    "Cycle invalidated by stale quotes",
	CodePlanRejected:        "Execution plan rejected by risk gate",
	CodeBelowMinProfit:      "Profit factor below minimum threshold",
	CodeOrderSizeOutOfRange: "Leg quantity outside exchange order size limits",
	CodeInsufficientBalance: "Insufficient balance for leg quantity",
	CodeSlippageExceeded:    "Estimated slippage erases cycle profit",
	CodeBalanceCommitted:    "Balance already committed to an in-flight plan",

	// Execution
	CodeOrderSubmitFailed: "Order submission failed",
	CodeOrderRejected:     "Order rejected by exchange",
	CodeOrderTimedOut:     "Order result wait timed out",
	CodeOrderStatusFailed: "Order status query failed",
	CodePlanAborted:       "Execution plan aborted",
	CodePartialExecution:  "Execution plan partially completed",

	// Circuit breaker
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
