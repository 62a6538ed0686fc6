package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{4}$`)

// NewOrderNumber formats ORD-YYYYMMDD-XXXX where XXXX is four random uppercase hex digits.
func NewOrderNumber(now time.Time) (string, error) {
	var suffix [2]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(suffix[:]))), nil
}

// ValidOrderNumber reports whether value has the order number shape.
func ValidOrderNumber(value string) bool {
	return orderNumberPattern.MatchString(value)
}
