package enums

import "fmt"

// CryptoType maps to the crypto_type enum in Postgres.
type CryptoType string

const (
	CryptoTypeBTC  CryptoType = "btc"
	CryptoTypeETH  CryptoType = "eth"
	CryptoTypeUSDT CryptoType = "usdt"
	CryptoTypeUSDC CryptoType = "usdc"
)

var validCryptoTypes = []CryptoType{
	CryptoTypeBTC,
	CryptoTypeETH,
	CryptoTypeUSDT,
	CryptoTypeUSDC,
}

// IsValid reports whether the value matches the canonical crypto type enum.
func (c CryptoType) IsValid() bool {
	for _, candidate := range validCryptoTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCryptoType converts raw input into CryptoType.
func ParseCryptoType(value string) (CryptoType, error) {
	for _, candidate := range validCryptoTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid crypto type %q", value)
}
