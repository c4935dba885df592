package constants

import "github.com/go-playground/validator/v10"

type ContextKey string

const (
	TxKey     ContextKey = "tx"
	PoolKey   ContextKey = "pool"
	LoggerKey ContextKey = "logger"
)

// Validate is the shared struct validator; packages register their own tags on it.
var Validate = validator.New(validator.WithRequiredStructEnabled())
