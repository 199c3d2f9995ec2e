package utils

import (
	"time"
)

// Assignment SLA defaults
const (
	// FirstContactSLA is the time a broker has to contact an assigned lead
	FirstContactSLA = 2 * time.Hour

	// ReassignmentSLA is the deadline after which an untouched lead may be reassigned
	ReassignmentSLA = 4 * time.Hour
)

// Billing defaults
const (
	// GracePeriod is the window between missing a due date and suspension
	GracePeriod = 5 * 24 * time.Hour

	// LateSignupDay is the day of month from which a new account skips the next cycle
	LateSignupDay = 25

	// AccountNumberPrefix prefixes the human-readable broker account number (ACC-003)
	AccountNumberPrefix = "ACC-"

	// AccountNumberSequence is the sequence_counters row backing account numbers
	AccountNumberSequence = "broker_account_number"

	DefaultCurrency = "MXN"
)

// InsurerCatalogCacheKey is the cache key of the active insurer catalog, before the redis prefix
const InsurerCatalogCacheKey = "insurers:active"

// HTTP defaults
const (
	// CORSMaxAge is how long browsers may cache a preflight response, in seconds
	CORSMaxAge = 3600

	// Version is reported by the health endpoint
	Version = "1.0.0"
)
