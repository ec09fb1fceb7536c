package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryProvider represents leaderboard provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryGateway represents chat platform errors
	CategoryGateway ErrorCategory = "gateway"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflicting concurrent operations
	CategoryConflict ErrorCategory = "conflict"
	// CategoryConfig represents missing or invalid configuration
	CategoryConfig ErrorCategory = "config"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// Error codes
const (
	CodeCycleInProgress  = "CYCLE_IN_PROGRESS"
	CodeEmptyLeaderboard = "EMPTY_LEADERBOARD"
	CodeGuildNotFound    = "GUILD_NOT_FOUND"
	CodeMemberNotFound   = "MEMBER_NOT_FOUND"
	CodeProviderError    = "PROVIDER_ERROR"
	CodeProviderLimited  = "PROVIDER_RATE_LIMIT"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeCacheError       = "CACHE_ERROR"
	CodeGatewayError     = "GATEWAY_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// CategorizedError represents an error with a category and a stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches any CategorizedError carrying the same code
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is comparisons
var (
	ErrCycleInProgress = &CategorizedError{
		Category: CategoryConflict,
		Code:     CodeCycleInProgress,
		Message:  "a reconciliation cycle is already running",
	}
	ErrEmptyLeaderboard = &CategorizedError{
		Category: CategoryProvider,
		Code:     CodeEmptyLeaderboard,
		Message:  "leaderboard source returned no entries",
	}
	ErrGuildNotFound = &CategorizedError{
		Category: CategoryConfig,
		Code:     CodeGuildNotFound,
		Message:  "guild not found",
	}
	ErrMemberNotFound = &CategorizedError{
		Category: CategoryNotFound,
		Code:     CodeMemberNotFound,
		Message:  "member not found",
	}
)

// NewEmptyLeaderboardError wraps the fetch failure that left the leaderboard empty
func NewEmptyLeaderboardError(cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProvider,
		Code:     CodeEmptyLeaderboard,
		Message:  "leaderboard source returned no entries",
		Cause:    cause,
	}
}

// NewGuildNotFoundError creates a guild not found error
func NewGuildNotFoundError(guildID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfig,
		Code:     CodeGuildNotFound,
		Message:  fmt.Sprintf("guild not found: %s", guildID),
		Cause:    cause,
		Details: map[string]interface{}{
			"guildId": guildID,
		},
	}
}

// NewMemberNotFoundError creates a member not found error
func NewMemberNotFoundError(userID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryNotFound,
		Code:     CodeMemberNotFound,
		Message:  fmt.Sprintf("member not found: %s", userID),
		Cause:    cause,
		Details: map[string]interface{}{
			"userId": userID,
		},
	}
}

// NewProviderError creates a leaderboard provider error
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProvider,
		Code:     CodeProviderError,
		Message:  fmt.Sprintf("leaderboard provider error: %s", provider),
		Cause:    cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewProviderRateLimitError creates a provider rate limit error
func NewProviderRateLimitError(provider string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryProvider,
		Code:     CodeProviderLimited,
		Message:  fmt.Sprintf("leaderboard provider rate limit exceeded: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDatabase,
		Code:     CodeDatabaseError,
		Message:  fmt.Sprintf("database error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCache,
		Code:     CodeCacheError,
		Message:  fmt.Sprintf("cache error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewGatewayError creates a chat platform error
func NewGatewayError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryGateway,
		Code:     CodeGatewayError,
		Message:  fmt.Sprintf("discord error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     CodeInternalError,
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// IsRetryable determines if an error is transient
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryProvider, CategoryDatabase, CategoryCache, CategoryGateway:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryNotFound
}

// Postgres codes for objects that already exist
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
)

// IsAlreadyExists reports whether err means the table or index is already there.
// Callers treat it as success.
func IsAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateTable || pgErr.Code == pgDuplicateObject
	}
	return false
}
