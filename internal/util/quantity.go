package util

import (
	"fmt"
	"strings"
)

// ParseCount converts a count string (e.g., "50k", "2m") to an integer.
// Plain digit strings parse as-is. If the string is empty, it returns 0.
func ParseCount(count string) (int, error) {
	count = strings.TrimSpace(count)
	if count == "" {
		return 0, nil
	}

	var value float64
	var unit string

	n, err := fmt.Sscanf(count, "%f%s", &value, &unit)

	if err != nil && n == 0 {
		return 0, fmt.Errorf("invalid count value: %s", count)
	}

	if value < 0 {
		return 0, fmt.Errorf("negative count value: %s", count)
	}

	if n == 1 {
		return int(value), nil
	}

	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "K":
		return int(value * 1e3), nil
	case "M":
		return int(value * 1e6), nil
	case "B":
		return int(value * 1e9), nil
	default:
		return 0, fmt.Errorf("unknown count suffix: %s", unit)
	}
}
