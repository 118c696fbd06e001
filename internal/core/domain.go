package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OneTime  Cadence = "one-time"
	Biweekly Cadence = "biweekly"
	Monthly  Cadence = "monthly"
	Yearly   Cadence = "yearly"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Cadence is the recurrence pattern of an income stream.
	Cadence string

	// Kind tells income transactions apart from expenses.
	Kind string

	IncomeStream struct {
		ID        string
		UserID    string
		Name      string
		Cadence   Cadence
		Amount    decimal.Decimal
		StartDate time.Time
		EndDate   *time.Time // nil while the stream is ongoing
	}

	Transaction struct {
		ID          string
		UserID      string
		Description string
		Category    string // required for expenses
		Amount      decimal.Decimal
		Kind        Kind
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidCadence     = errors.New("invalid cadence")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrMissingStartDate   = errors.New("missing start date")
	ErrMissingCreatedAt   = errors.New("missing creation date")
	ErrEndBeforeStart     = errors.New("end date must not be before start date")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// Categories offered by the web client for expenses. Any non-empty string is accepted.
var DefaultCategories = []string{"Food", "Bills", "Entertainment", "Other"}

// ParseCadence accepts the canonical names plus the legacy "cash" value,
// which older clients stored for one-time income.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case OneTime, Biweekly, Monthly, Yearly:
		return c, nil
	case "cash", "onetime", "one_time":
		return OneTime, nil
	default:
		return "", ErrInvalidCadence
	}
}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Income, Expense:
		return k, nil
	default:
		return "", ErrInvalidKind
	}
}

func (c Cadence) IsValid() bool {
	switch c {
	case OneTime, Biweekly, Monthly, Yearly:
		return true
	}
	return false
}

// IsOngoing reports whether the stream has no end date.
func (s IncomeStream) IsOngoing() bool {
	return s.EndDate == nil
}

func (s IncomeStream) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if !s.Cadence.IsValid() {
		return ErrInvalidCadence
	}
	if s.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if s.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	switch t.Kind {
	case Expense:
		if strings.TrimSpace(t.Category) == "" {
			return ErrEmptyCategory
		}
	case Income:
	default:
		return ErrInvalidKind
	}
	if t.CreatedAt.IsZero() {
		return ErrMissingCreatedAt
	}
	return nil
}
