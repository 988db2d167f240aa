package model

import (
	"fmt"
	"strings"
)

// PairKey is the canonical, order-independent identifier of a token pair.
type PairKey string

// NewPairKey builds the canonical key for two token identifiers.
// (A,B) and (B,A) always resolve to the same key.
func NewPairKey(tokenA, tokenB string) (PairKey, error) {
	tokenA = strings.TrimSpace(tokenA)
	tokenB = strings.TrimSpace(tokenB)
	if tokenA == "" || tokenB == "" {
		return "", fmt.Errorf("%w: token identifiers must be non-empty", ErrInvalidTokenPair)
	}
	if tokenA == tokenB {
		return "", fmt.Errorf("%w: identical tokens %q", ErrInvalidTokenPair, tokenA)
	}
	first, second := tokenA, tokenB
	if second < first {
		first, second = second, first
	}
	return PairKey(first + "/" + second), nil
}

// Tokens returns the pair's token identifiers in canonical order.
func (k PairKey) Tokens() (string, string) {
	first, second, _ := strings.Cut(string(k), "/")
	return first, second
}

func (k PairKey) String() string {
	return string(k)
}
