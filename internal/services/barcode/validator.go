// Package barcode holds the symbology tags and the checksum validators for decoded codes.
package barcode

import "strings"

// Symbology identifies a barcode encoding standard.
type Symbology string

const (
	EAN13   Symbology = "EAN13"
	UPCA    Symbology = "UPCA"
	CODE128 Symbology = "CODE128"
)

// Supported lists the symbologies the decoder is restricted to, in decode preference order.
var Supported = []Symbology{EAN13, UPCA, CODE128}

// pharmaPrefixes are EAN-13 prefixes typical for medicines sold in Spain and neighbouring markets.
var pharmaPrefixes = []string{"84", "76", "77", "80", "81", "82", "83"}

// IsSupported reports whether s is one of the symbologies the scanner looks for.
func IsSupported(s Symbology) bool {
	for _, sup := range Supported {
		if s == sup {
			return true
		}
	}
	return false
}

// ParseSymbology normalises decoder tags such as "EAN-13", "UPC_A" or "code128".
// Unknown tags are returned upper-cased and stripped of separators.
func ParseSymbology(tag string) Symbology {
	norm := strings.ToUpper(tag)
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)
	return Symbology(norm)
}

// CheckDigitEAN13 computes the check digit for the first 12 digits of an EAN-13.
// ok is false when digits is not exactly 12 decimal digits.
func CheckDigitEAN13(digits string) (int, bool) {
	if len(digits) != 12 || !allDigits(digits) {
		return 0, false
	}
	odd, even := 0, 0
	for i := 0; i < 12; i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			odd += d
		} else {
			even += d
		}
	}
	return (10 - (odd+3*even)%10) % 10, true
}

// CheckDigitUPCA computes the check digit for the first 11 digits of a UPC-A.
func CheckDigitUPCA(digits string) (int, bool) {
	if len(digits) != 11 || !allDigits(digits) {
		return 0, false
	}
	odd, even := 0, 0
	for i := 0; i < 11; i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			odd += d
		} else {
			even += d
		}
	}
	return (10 - (3*odd+even)%10) % 10, true
}

// IsValidEAN13 reports whether code is 13 digits with a correct check digit.
func IsValidEAN13(code string) bool {
	if len(code) != 13 || !allDigits(code) {
		return false
	}
	check, _ := CheckDigitEAN13(code[:12])
	return check == int(code[12]-'0')
}

// IsValidUPCA reports whether code is 12 digits with a correct check digit.
func IsValidUPCA(code string) bool {
	if len(code) != 12 || !allDigits(code) {
		return false
	}
	check, _ := CheckDigitUPCA(code[:11])
	return check == int(code[11]-'0')
}

// Validate checks code according to its symbology. CODE128 carries no simple
// checksum we can verify here, and unknown symbologies are accepted as-is.
func Validate(code string, sym Symbology) bool {
	switch sym {
	case EAN13:
		return IsValidEAN13(code)
	case UPCA:
		return IsValidUPCA(code)
	default:
		return true
	}
}

// IsPharmaceutical classifies a code as typical of pharmacy products.
func IsPharmaceutical(code string, sym Symbology) bool {
	if !IsSupported(sym) {
		return false
	}
	if sym == EAN13 && len(code) == 13 {
		for _, p := range pharmaPrefixes {
			if strings.HasPrefix(code, p) {
				return true
			}
		}
		return false
	}
	return true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
