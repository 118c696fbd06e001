// Package records converts flat document field maps into core types.
//
// Documents reach us from several stores and client generations, so date and
// amount fields come in a handful of shapes. This is the one place that knows
// about those shapes; everything past it works on time.Time and decimal.Decimal.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/timestamppb"

	"fintrack/internal/core"
)

// Field names used by the web client's documents.
const (
	FieldUserID      = "userId"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldAmount      = "amount"
	FieldType        = "type"
	FieldCreatedAt   = "createdAt"
	FieldName        = "name"
	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
)

var ErrUnsupportedType = errors.New("unsupported field type")

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTime normalises any accepted date representation.
// ok is false when the value is absent (nil); err is set when it is present but unusable.
func ToTime(v any) (t time.Time, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x, !x.IsZero(), nil
	case *time.Time:
		if x == nil {
			return time.Time{}, false, nil
		}
		return *x, !x.IsZero(), nil
	case *timestamppb.Timestamp:
		if x == nil {
			return time.Time{}, false, nil
		}
		return x.AsTime(), true, nil
	case map[string]any:
		return fromSecondsMap(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false, nil
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("parse date %q", s)
	case int64:
		return time.UnixMilli(x).UTC(), true, nil
	case int:
		return time.UnixMilli(int64(x)).UTC(), true, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false, fmt.Errorf("date is %v", x)
		}
		return time.UnixMilli(int64(x)).UTC(), true, nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse epoch millis %q: %w", x, err)
		}
		return time.UnixMilli(ms).UTC(), true, nil
	default:
		return time.Time{}, false, fmt.Errorf("date %T: %w", v, ErrUnsupportedType)
	}
}

// fromSecondsMap handles timestamps serialised by the JS SDKs:
// {"seconds": 1700000000, "nanoseconds": 0} (or the "_seconds" variant).
func fromSecondsMap(m map[string]any) (time.Time, bool, error) {
	secs, ok := m["seconds"]
	if !ok {
		secs, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false, fmt.Errorf("timestamp map without seconds: %w", ErrUnsupportedType)
	}
	nanos, ok := m["nanoseconds"]
	if !ok {
		nanos = m["_nanoseconds"]
	}
	s, err := toInt64(secs)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timestamp seconds: %w", err)
	}
	var n int64
	if nanos != nil {
		if n, err = toInt64(nanos); err != nil {
			return time.Time{}, false, fmt.Errorf("timestamp nanoseconds: %w", err)
		}
	}
	return time.Unix(s, n).UTC(), true, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("%T: %w", v, ErrUnsupportedType)
	}
}

// ToDecimal normalises an amount. Absent values are zero.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("amount is %v", x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(x, ",", ".")))
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", x, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("amount %T: %w", v, ErrUnsupportedType)
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// DecodeTransaction builds a transaction from a document. Fields that cannot be
// converted are left at their zero value and reported in the returned error; the
// transaction is still usable.
func DecodeTransaction(id string, fields map[string]any) (core.Transaction, error) {
	var errs []error
	t := core.Transaction{
		ID:          id,
		UserID:      toString(fields[FieldUserID]),
		Description: toString(fields[FieldDescription]),
		Category:    toString(fields[FieldCategory]),
	}

	amount, err := ToDecimal(fields[FieldAmount])
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldAmount, err))
	}
	t.Amount = amount

	kind, err := core.ParseKind(toString(fields[FieldType]))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldType, err))
	}
	t.Kind = kind

	createdAt, _, err := ToTime(fields[FieldCreatedAt])
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldCreatedAt, err))
	}
	t.CreatedAt = createdAt

	return t, errors.Join(errs...)
}

// DecodeIncomeStream builds an income stream from a document. A missing start
// date is not an error here: the stream is kept and simply never counts as active.
func DecodeIncomeStream(id string, fields map[string]any) (core.IncomeStream, error) {
	var errs []error
	s := core.IncomeStream{
		ID:     id,
		UserID: toString(fields[FieldUserID]),
		Name:   toString(fields[FieldName]),
	}

	amount, err := ToDecimal(fields[FieldAmount])
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldAmount, err))
	}
	s.Amount = amount

	cadence, err := core.ParseCadence(toString(fields[FieldType]))
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldType, err))
	}
	s.Cadence = cadence

	start, _, err := ToTime(fields[FieldStartDate])
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldStartDate, err))
	}
	s.StartDate = start

	end, ok, err := ToTime(fields[FieldEndDate])
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", FieldEndDate, err))
	}
	if ok {
		s.EndDate = &end
	}

	return s, errors.Join(errs...)
}

// EncodeTransaction is the inverse of DecodeTransaction. Amounts are written as
// float64 because that is what the web client reads back.
func EncodeTransaction(t core.Transaction) map[string]any {
	return map[string]any{
		FieldUserID:      t.UserID,
		FieldDescription: t.Description,
		FieldCategory:    t.Category,
		FieldAmount:      t.Amount.InexactFloat64(),
		FieldType:        string(t.Kind),
		FieldCreatedAt:   t.CreatedAt,
	}
}

// EncodeIncomeStream is the inverse of DecodeIncomeStream. An ongoing stream has no endDate key.
func EncodeIncomeStream(s core.IncomeStream) map[string]any {
	m := map[string]any{
		FieldUserID:    s.UserID,
		FieldName:      s.Name,
		FieldType:      string(s.Cadence),
		FieldAmount:    s.Amount.InexactFloat64(),
		FieldStartDate: s.StartDate,
	}
	if s.EndDate != nil {
		m[FieldEndDate] = *s.EndDate
	}
	return m
}
