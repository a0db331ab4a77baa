package models

import (
	"fmt"
	"strings"
)

// Family selects the training and prediction strategy for a run.
type Family string

const (
	FamilyARIMA    Family = "arima"
	FamilySARIMA   Family = "sarima"
	FamilyProphet  Family = "prophet"
	FamilySequence Family = "sequence"
)

// Families lists the supported families in a stable order.
func Families() []Family {
	return []Family{FamilyARIMA, FamilySARIMA, FamilyProphet, FamilySequence}
}

// ParseFamily normalises a family tag. "lstm" is accepted as an alias of sequence.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arima":
		return FamilyARIMA, nil
	case "sarima":
		return FamilySARIMA, nil
	case "prophet":
		return FamilyProphet, nil
	case "sequence", "lstm":
		return FamilySequence, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFamily, s)
	}
}

// Valid reports whether f is one of the supported families.
func (f Family) Valid() bool {
	switch f {
	case FamilyARIMA, FamilySARIMA, FamilyProphet, FamilySequence:
		return true
	}
	return false
}

func (f Family) String() string { return string(f) }
