// Package wallet handles wallet address parsing and display formatting.
package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// addressRegex matches a 20-byte hex address: 0x{40 hex chars}.
// Example: 0x56687bf447db6ffa42ffe2204a05edaa20f55839
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	ErrEmptyAddress   = errors.New("wallet: empty address")
	ErrInvalidAddress = errors.New("wallet: invalid address format")
)

// ParseAddress validates an address and returns its canonical lower-case form.
func ParseAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", ErrEmptyAddress
	}
	if !addressRegex.MatchString(addr) {
		return "", fmt.Errorf("%w: %s (expected 0x followed by 40 hex characters)",
			ErrInvalidAddress, addr)
	}
	return strings.ToLower(addr), nil
}

// ParseList parses a list of addresses, dropping duplicates while keeping
// first-seen order. The first invalid address aborts with its error.
func ParseList(raws []string) ([]string, error) {
	seen := make(map[string]bool, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		addr, err := ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

// Normalize lower-cases and trims an address without validating it.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Short returns the 0x1234...abcd display form.
func Short(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
