package phivault

import (
	"fmt"

	"github.com/google/uuid"
)

// PatientDataCategory identifies one of the fixed PHI categories a patient
// record can belong to. The set is closed: categories are never added at
// runtime, and each one maps to exactly one stable 128-bit identifier used
// to namespace secret and blob names.
type PatientDataCategory int

const (
	Identifiers PatientDataCategory = iota
	MedicalRecords
	ContactInfo
	InsuranceInfo
	FinancialInfo
	BiometricData
)

// categoryIDs is the fixed bijection between categories and their stable
// identifiers. It is built once and never mutated; deriving identifiers at
// runtime would break every composite key already written to storage.
var categoryIDs = map[PatientDataCategory]uuid.UUID{
	Identifiers:    uuid.MustParse("b730fc88-4c8c-4af0-9375-1655e0c49126"),
	MedicalRecords: uuid.MustParse("d138af2e-f265-4bce-9324-f4892558f6fc"),
	ContactInfo:    uuid.MustParse("85d0e5db-b10e-45e7-a7e1-85c8bfe48e61"),
	InsuranceInfo:  uuid.MustParse("768d2fbd-f216-4b96-a221-5013a18ecf5c"),
	FinancialInfo:  uuid.MustParse("59d7a4ed-b041-4f10-b403-c112be2e847e"),
	BiometricData:  uuid.MustParse("71df5d4b-19c7-4bb0-8796-2ce0ff444b91"),
}

var idCategories = func() map[uuid.UUID]PatientDataCategory {
	m := make(map[uuid.UUID]PatientDataCategory, len(categoryIDs))
	for c, id := range categoryIDs {
		m[id] = c
	}
	return m
}()

// Categories returns every category in declaration order.
func Categories() []PatientDataCategory {
	return []PatientDataCategory{
		Identifiers,
		MedicalRecords,
		ContactInfo,
		InsuranceInfo,
		FinancialInfo,
		BiometricData,
	}
}

func (c PatientDataCategory) String() string {
	switch c {
	case Identifiers:
		return "Identifiers"
	case MedicalRecords:
		return "MedicalRecords"
	case ContactInfo:
		return "ContactInfo"
	case InsuranceInfo:
		return "InsuranceInfo"
	case FinancialInfo:
		return "FinancialInfo"
	case BiometricData:
		return "BiometricData"
	}
	return fmt.Sprintf("PatientDataCategory(%d)", int(c))
}

// ID returns the stable identifier for the category. It is total over the
// closed enumeration and deterministic across restarts.
func (c PatientDataCategory) ID() uuid.UUID {
	return categoryIDs[c]
}

// CategoryByID resolves a stable identifier back to its category. An
// identifier outside the fixed table fails with ErrUnknownCategory; it never
// falls back to a default.
func CategoryByID(id uuid.UUID) (PatientDataCategory, error) {
	c, ok := idCategories[id]
	if !ok {
		return 0, fmt.Errorf("%w: no category for identifier %s", ErrUnknownCategory, id)
	}
	return c, nil
}

// ParseCategory resolves a category from its name, e.g. "MedicalRecords".
func ParseCategory(name string) (PatientDataCategory, error) {
	for _, c := range Categories() {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}
