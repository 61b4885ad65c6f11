package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Payment lifecycle errors
	ErrValidation           = errors.New("validation failed")
	ErrGatewayConnection    = errors.New("gateway unreachable")
	ErrGatewayRejected      = errors.New("gateway rejected the transaction")
	ErrVerificationMismatch = errors.New("verification response does not match stored record")
	ErrPayerCancelled       = errors.New("payer cancelled the transaction")
	ErrExpired              = errors.New("payment attempt expired")
	ErrAttemptInFlight      = errors.New("order already has a pending payment attempt")
	ErrRetryExhausted       = errors.New("payment attempt is not retryable")
	ErrIllegalTransition    = errors.New("illegal payment status transition")
	ErrUnknownGateway       = errors.New("unknown payment gateway")
	ErrRefundNotAllowed     = errors.New("refund not allowed for this payment")
	ErrRefundUnsupported    = errors.New("gateway has no refund API")

	// Infrastructure errors
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
)
