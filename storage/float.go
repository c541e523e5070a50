package storage

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Numeric conversions in this file use a fixed '.' decimal separator.
// strconv never consults the process locale, so results are identical
// whatever LC_NUMERIC the host program runs under.

// ParseFloat parses a decimal float argument. "inf", "+inf" and "-inf" are
// accepted (case-insensitive), NaN and surrounding spaces are not.
func ParseFloat(b []byte) (float64, error) {
	s := string(b)
	if s == "" || strings.TrimSpace(s) != s {
		return 0, ErrNotFloat
	}
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFloat
	}
	return f, nil
}

// ParseInt parses a decimal int64 argument
func ParseInt(b []byte) (int64, error) {
	s := string(b)
	if s == "" || s[0] == '+' || strings.HasPrefix(s, "-0") || (len(s) > 1 && s[0] == '0') {
		return 0, ErrNotInteger
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

// incrPrec is the mantissa width INCRBYFLOAT adds at, that of an x87 long
// double
const incrPrec = 64

// incrDigits is the number of significant digits an INCRBYFLOAT result keeps
const incrDigits = 17

// parseIncrFloat parses an INCRBYFLOAT operand at incrPrec bits. Infinite
// operands are reported as ErrNaNOrInfinity.
func parseIncrFloat(b []byte) (*big.Float, error) {
	f, err := ParseFloat(b)
	if err != nil {
		return nil, err
	}
	if math.IsInf(f, 0) {
		return nil, ErrNaNOrInfinity
	}
	x, _, err := big.ParseFloat(string(b), 10, incrPrec, big.ToNearestEven)
	if err != nil {
		return nil, ErrNotFloat
	}
	return x, nil
}

// FormatFloat renders the result of INCRBYFLOAT: rounded to 17 significant
// digits, trailing zeros dropped, plain decimal notation with no exponent.
func FormatFloat(x *big.Float) string {
	if x.Sign() == 0 {
		return "0"
	}
	// d.dddddddddddddddde±XX
	text := x.Text('e', incrDigits-1)
	neg := strings.HasPrefix(text, "-")
	text = strings.TrimPrefix(text, "-")
	mantissa, expText, _ := strings.Cut(text, "e")
	exp, _ := strconv.Atoi(expText)
	digits := strings.TrimRight(strings.Replace(mantissa, ".", "", 1), "0")

	// value is 0.digits * 10^point
	point := exp + 1
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	switch {
	case point <= 0:
		sb.WriteString("0.")
		sb.WriteString(strings.Repeat("0", -point))
		sb.WriteString(digits)
	case point >= len(digits):
		sb.WriteString(digits)
		sb.WriteString(strings.Repeat("0", point-len(digits)))
	default:
		sb.WriteString(digits[:point])
		sb.WriteByte('.')
		sb.WriteString(digits[point:])
	}
	return sb.String()
}

// FormatScore renders a sorted set score for replies
func FormatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ScoreBound is one end of a score interval
type ScoreBound struct {
	Value     float64
	Exclusive bool
}

// ParseScoreBound parses a ZRANGEBYSCORE bound such as "1.5", "(1.5",
// "-inf" or "+inf"
func ParseScoreBound(b []byte) (ScoreBound, error) {
	var bound ScoreBound
	if len(b) > 0 && b[0] == '(' {
		bound.Exclusive = true
		b = b[1:]
	}
	f, err := ParseFloat(b)
	if err != nil {
		return ScoreBound{}, err
	}
	bound.Value = f
	return bound, nil
}

// aboveMin reports whether score satisfies the lower bound
func (b ScoreBound) aboveMin(score float64) bool {
	if b.Exclusive {
		return score > b.Value
	}
	return score >= b.Value
}

// belowMax reports whether score satisfies the upper bound
func (b ScoreBound) belowMax(score float64) bool {
	if b.Exclusive {
		return score < b.Value
	}
	return score <= b.Value
}
