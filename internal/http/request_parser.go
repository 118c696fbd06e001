// Package http exposes the ledger and its summaries as a JSON API.
//
// This file turns query strings and request bodies into domain values.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/records"
	"fintrack/internal/summary"
)

// ErrBadRequest marks input that could not be parsed at all.
var ErrBadRequest = errors.New("bad request")

const maxBodyBytes = 1 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// ParseFilterSelection reads mode, year, month (0-11), start and end from query.
// Missing fields fall back to def; an empty query yields def unchanged.
// Date-only bounds are midnight in loc.
func ParseFilterSelection(query url.Values, def summary.FilterSelection, loc *time.Location) (summary.FilterSelection, error) {
	if loc == nil {
		loc = time.UTC
	}
	mode := summary.FilterMode(strings.ToLower(strings.TrimSpace(query.Get("mode"))))
	if mode == "" {
		mode = summary.ModeMonth
	}

	year, err := intParam(query, "year", def.Year)
	if err != nil {
		return summary.FilterSelection{}, err
	}

	switch mode {
	case summary.ModeMonth:
		month, err := intParam(query, "month", def.Month)
		if err != nil {
			return summary.FilterSelection{}, err
		}
		if month < 0 || month > 11 {
			return summary.FilterSelection{}, badRequest("month must be between 0 and 11, got %d", month)
		}
		return summary.Month(year, month), nil
	case summary.ModeYear:
		return summary.Year(year), nil
	case summary.ModeCustom:
		start, err := boundParam(query, "start", loc)
		if err != nil {
			return summary.FilterSelection{}, err
		}
		end, err := boundParam(query, "end", loc)
		if err != nil {
			return summary.FilterSelection{}, err
		}
		return summary.Custom(start, end), nil
	default:
		return summary.FilterSelection{}, badRequest("unknown mode %q", mode)
	}
}

func intParam(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func boundParam(query url.Values, key string, loc *time.Location) (*time.Time, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return &t, nil
	}
	return nil, badRequest("%s must be YYYY-MM-DD or RFC 3339, got %q", key, v)
}

// readFields decodes a JSON object body with numbers kept exact.
func readFields(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return nil, badRequest("body larger than %d bytes", maxBodyBytes)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, badRequest("body must be a JSON object: %v", err)
	}
	if fields == nil {
		return nil, badRequest("body must be a JSON object")
	}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			fields[k] = sanitizeInput(s)
		}
	}
	// Typed amounts ("12,50") are checked and rounded to cents here; numbers go
	// through records so a negative one reaches validation.
	if s, ok := fields[records.FieldAmount].(string); ok {
		amount, err := core.ParseAmount(s)
		if err != nil {
			return nil, badRequest("%s: %q is not an amount", records.FieldAmount, s)
		}
		fields[records.FieldAmount] = amount
	}
	return fields, nil
}

// ParseTransactionBody reads a transaction in the web client's field layout.
func ParseTransactionBody(r *http.Request) (core.Transaction, error) {
	fields, err := readFields(r)
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := records.DecodeTransaction("", fields)
	if err != nil {
		return core.Transaction{}, badRequest("%v", err)
	}
	return t, nil
}

// ParseIncomeStreamBody reads an income stream in the web client's field layout.
func ParseIncomeStreamBody(r *http.Request) (core.IncomeStream, error) {
	fields, err := readFields(r)
	if err != nil {
		return core.IncomeStream{}, err
	}
	s, err := records.DecodeIncomeStream("", fields)
	if err != nil {
		return core.IncomeStream{}, badRequest("%v", err)
	}
	return s, nil
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
