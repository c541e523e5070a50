package command

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/birdisle/birdisle/storage"
)

func parseInt(arg []byte) (int64, error) {
	n, err := storage.ParseInt(arg)
	if err != nil {
		return 0, notIntegerError()
	}
	return n, nil
}

func parseFloat(arg []byte) (float64, error) {
	f, err := storage.ParseFloat(arg)
	if err != nil {
		return 0, notFloatError()
	}
	return f, nil
}

// parseTimeout parses a blocking timeout in seconds. Decimal values are
// accepted; 0 blocks forever.
func parseTimeout(arg []byte) (time.Duration, error) {
	f, err := storage.ParseFloat(arg)
	if err != nil || math.IsInf(f, 0) {
		return 0, timeoutError()
	}
	if f < 0 {
		return 0, newError(KindNotANumber, "ERR timeout is negative")
	}
	d := time.Duration(f * float64(time.Second))
	if f > 0 && d <= 0 {
		return 0, timeoutError()
	}
	return d, nil
}

// parseCount parses an optional pop count. A missing count yields 1.
func parseCount(args [][]byte, idx int) (int, bool, error) {
	if len(args) <= idx {
		return 1, false, nil
	}
	n, err := storage.ParseInt(args[idx])
	if err != nil || n < 0 {
		return 0, false, newError(KindNotANumber, "ERR value is out of range, must be positive")
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n), true, nil
}

func keyStrings(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, arg := range args {
		keys[i] = string(arg)
	}
	return keys
}

func isOption(arg []byte, name string) bool {
	return strings.EqualFold(string(arg), name)
}

func formatInt(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}
