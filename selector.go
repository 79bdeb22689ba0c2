// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"regexp"
	"strconv"
	"time"

	"github.com/molecula/nvdstore/errors"
	"github.com/molecula/nvdstore/logger"
)

// Predicate tests one attribute path of a document against a fixed pattern,
// limit or range. When the path resolves to a list, the predicate holds if
// any element matches.
type Predicate func(doc *Document, attr string) (bool, error)

// Type check levels controlling how selectors handle a pattern/value type
// mismatch.
const (
	TypeCheckSilent = 0
	TypeCheckWarn   = 1
	TypeCheckError  = 2
)

// Selectors builds predicates with a shared type-check policy and logger.
// The zero value is not usable; construct with NewSelectors.
type Selectors struct {
	typeCheckLevel int
	log            logger.Logger
}

// NewSelectors returns a predicate factory using the given type check level.
// A nil log falls back to the nop logger.
func NewSelectors(typeCheckLevel int, log logger.Logger) *Selectors {
	if log == nil {
		log = logger.NopLogger
	}
	return &Selectors{
		typeCheckLevel: typeCheckLevel,
		log:            log,
	}
}

// DefaultSelectors warns on type mismatches to stderr.
func DefaultSelectors() *Selectors {
	return NewSelectors(TypeCheckWarn, logger.StderrLogger)
}

// wrap lifts an elementwise test into a Predicate: resolve the path,
// normalize to a candidate list and OR-reduce the test over the elements.
func (s *Selectors) wrap(fn func(value interface{}) (bool, error)) Predicate {
	return func(doc *Document, attr string) (bool, error) {
		for _, value := range resolveAttr(doc, attr) {
			ok, err := fn(value)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// typeMismatch applies the configured strictness: silent, warn or error.
func (s *Selectors) typeMismatch(format string, args ...interface{}) error {
	switch {
	case s.typeCheckLevel >= TypeCheckError:
		return errors.Newf(errors.ErrTypeMismatch, format, args...)
	case s.typeCheckLevel == TypeCheckWarn:
		s.log.Warnf(format, args...)
	}
	return nil
}

// Match compares the attribute value against pattern. String patterns are
// regular expressions; fullMatch anchors the pattern to the whole value,
// otherwise it anchors only to the start. Non-string patterns compare by
// equality with numeric coercion.
func (s *Selectors) Match(pattern interface{}, fullMatch bool) Predicate {
	re, reErr := compileMatch(pattern, fullMatch)

	return s.wrap(func(value interface{}) (bool, error) {
		if reErr != nil {
			return false, reErr
		}

		value = coerceNumeric(value, pattern)

		if re != nil {
			str, ok := value.(string)
			if !ok {
				if err := s.typeMismatch("type mismatch: pattern %T, value %T", pattern, value); err != nil {
					return false, err
				}
				return false, nil
			}
			return re.MatchString(str), nil
		}

		equal, comparable := looseEqual(value, pattern)
		if !comparable {
			if err := s.typeMismatch("type mismatch: pattern %T, value %T", pattern, value); err != nil {
				return false, err
			}
			return false, nil
		}
		return equal, nil
	})
}

// Search is like Match but matches the pattern anywhere in the value. The
// pattern must be a string.
func (s *Selectors) Search(pattern string) Predicate {
	re, reErr := regexp.Compile(pattern)

	return s.wrap(func(value interface{}) (bool, error) {
		if reErr != nil {
			return false, errors.Wrapf(reErr, "compiling search pattern %q", pattern)
		}

		str, ok := coerceNumeric(value, pattern).(string)
		if !ok {
			if err := s.typeMismatch("type mismatch: pattern %T, value %T", pattern, value); err != nil {
				return false, err
			}
			return false, nil
		}
		return re.MatchString(str), nil
	})
}

// Gt holds when the value is strictly greater than limit.
func (s *Selectors) Gt(limit interface{}) Predicate {
	return s.ordered(limit, func(cmp int) bool { return cmp > 0 })
}

// Ge holds when the value is greater than or equal to limit.
func (s *Selectors) Ge(limit interface{}) Predicate {
	return s.ordered(limit, func(cmp int) bool { return cmp >= 0 })
}

// Lt holds when the value is strictly lower than limit.
func (s *Selectors) Lt(limit interface{}) Predicate {
	return s.ordered(limit, func(cmp int) bool { return cmp < 0 })
}

// Le holds when the value is lower than or equal to limit.
func (s *Selectors) Le(limit interface{}) Predicate {
	return s.ordered(limit, func(cmp int) bool { return cmp <= 0 })
}

func (s *Selectors) ordered(limit interface{}, accept func(cmp int) bool) Predicate {
	return s.wrap(func(value interface{}) (bool, error) {
		cmp, comparable := compareOrdered(value, limit)
		if !comparable {
			if err := s.typeMismatch("cannot order value %T against limit %T", value, limit); err != nil {
				return false, err
			}
			return false, nil
		}
		return accept(cmp), nil
	})
}

// In holds when the value equals any member of values.
func (s *Selectors) In(values ...interface{}) Predicate {
	return s.wrap(func(value interface{}) (bool, error) {
		for _, member := range values {
			if equal, ok := looseEqual(coerceNumeric(value, member), member); ok && equal {
				return true, nil
			}
		}
		return false, nil
	})
}

// InRange holds when low <= value <= high. Construction fails when high is
// not strictly greater than low.
func (s *Selectors) InRange(low, high interface{}) (Predicate, error) {
	if cmp, comparable := compareOrdered(high, low); !comparable {
		return nil, errors.Newf(errors.ErrValidation, "range bounds %T and %T are not comparable", low, high)
	} else if cmp <= 0 {
		return nil, errors.Newf(errors.ErrValidation, "`high` must be > `low`: %v <= %v", high, low)
	}

	return s.wrap(func(value interface{}) (bool, error) {
		lowCmp, ok := compareOrdered(value, low)
		if !ok {
			if err := s.typeMismatch("cannot order value %T against bound %T", value, low); err != nil {
				return false, err
			}
			return false, nil
		}
		highCmp, _ := compareOrdered(value, high)
		return lowCmp >= 0 && highCmp <= 0, nil
	}), nil
}

// compileMatch compiles string patterns; for full matches the pattern must
// cover the whole value, otherwise only the start (Search covers anywhere).
func compileMatch(pattern interface{}, fullMatch bool) (*regexp.Regexp, error) {
	str, ok := pattern.(string)
	if !ok {
		return nil, nil
	}
	anchored := "^(?:" + str + ")"
	if fullMatch {
		anchored += "$"
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling match pattern %q", str)
	}
	return re, nil
}

// coerceNumeric adapts a numeric value to the pattern's type: to a string
// rendering for string patterns, to a float for numeric patterns.
func coerceNumeric(value, pattern interface{}) interface{} {
	num, ok := toFloat(value)
	if !ok {
		return value
	}
	switch pattern.(type) {
	case string:
		return formatNumber(num)
	case int, int64, float64:
		return num
	}
	return value
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// looseEqual reports equality between a value and a pattern, treating all
// numeric types as one. The second result is false when the two are not of
// comparable kinds.
func looseEqual(value, pattern interface{}) (equal, comparable bool) {
	if vn, ok := toFloat(value); ok {
		if pn, ok := toFloat(pattern); ok {
			return vn == pn, true
		}
		return false, false
	}

	switch v := value.(type) {
	case string:
		p, ok := pattern.(string)
		return ok && v == p, ok
	case bool:
		p, ok := pattern.(bool)
		return ok && v == p, ok
	case time.Time:
		p, ok := pattern.(time.Time)
		return ok && v.Equal(p), ok
	}
	return false, false
}

// compareOrdered compares two scalars of an ordered kind: strings
// lexically, numbers by magnitude, timestamps chronologically.
func compareOrdered(a, b interface{}) (cmp int, comparable bool) {
	if an, ok := toFloat(a); ok {
		bn, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
