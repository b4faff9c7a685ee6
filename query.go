package phivault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PatientData is the assembled view of one patient for a requesting subject:
// the patient id plus one entry per category that survived both the
// capability and the consent gate. Category order is the arrival order of the
// underlying records.
type PatientData struct {
	UserID  string
	entries []categoryEntry
}

type categoryEntry struct {
	name  string
	value json.RawMessage
}

// Category returns the decrypted value for the named category, if included.
func (p *PatientData) Category(name string) (json.RawMessage, bool) {
	for _, e := range p.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return nil, false
}

// Categories returns the included category names in arrival order.
func (p *PatientData) Categories() []string {
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		names = append(names, e.name)
	}
	return names
}

// MarshalJSON emits one object per patient with a UserId field and one key
// per included category, preserving arrival order.
func (p PatientData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"UserId":`)
	id, err := json.Marshal(p.UserID)
	if err != nil {
		return nil, err
	}
	buf.Write(id)
	for _, e := range p.entries {
		name, err := json.Marshal(e.name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(e.value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryEngine answers, for a requesting subject, "what PHI may this subject
// see right now". Two independent gates must agree before anything is
// disclosed: the policy engine must resolve read capability, and the
// patient's recorded consent scope must name the category.
type QueryEngine struct {
	policy  PolicyEngine
	vault   *Vault
	consent *ConsentService
	logger  zerolog.Logger
}

// QueryOption configures a QueryEngine during construction.
type QueryOption func(*QueryEngine) error

// WithQueryLogger sets the logger used for query operations.
func WithQueryLogger(logger zerolog.Logger) QueryOption {
	return func(e *QueryEngine) error {
		e.logger = logger
		return nil
	}
}

// NewQueryEngine creates a QueryEngine over the given collaborators.
func NewQueryEngine(policy PolicyEngine, vault *Vault, consent *ConsentService, opts ...QueryOption) (*QueryEngine, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy engine cannot be nil", ErrInvalidConfiguration)
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: vault cannot be nil", ErrInvalidConfiguration)
	}
	if consent == nil {
		return nil, fmt.Errorf("%w: consent service cannot be nil", ErrInvalidConfiguration)
	}
	e := &QueryEngine{
		policy:  policy,
		vault:   vault,
		consent: consent,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ListAuthorizedPatients returns the raw (patient, category) composite keys
// the subject may read, with the object-type prefix stripped. No decryption
// or consent filtering is applied.
func (e *QueryEngine) ListAuthorizedPatients(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidPayload)
	}
	objects, err := e.policy.ListObjects(ctx, UserSubjectPrefix+userID, ReadRelation, PatientObjectType)
	if err != nil {
		return nil, fmt.Errorf("%w: listing readable objects for %q: %v", ErrPolicyUnavailable, userID, err)
	}
	composites := make([]string, 0, len(objects))
	for _, obj := range objects {
		composites = append(composites, strings.TrimPrefix(obj, PatientObjectPrefix))
	}
	return composites, nil
}

// ListReadablePatients assembles the PHI the subject may see: every
// (patient, category) record the policy engine grants can_read on, decrypted
// and then filtered by each patient's recorded consent scope, grouped per
// patient.
//
// A patient without a consent record is excluded without failing the
// request. Decryption failures are isolated to the affected record: the
// remaining records are still returned, and the failures come back as a
// joined error alongside them, wrapping ErrDecryptionFailed so they are never
// silently mapped to absence. Any other failure aborts the whole request
// with ErrRetrieval.
func (e *QueryEngine) ListReadablePatients(ctx context.Context, userID string) ([]PatientData, error) {
	composites, err := e.ListAuthorizedPatients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	var (
		order      []string
		grouped    = make(map[string]*PatientData)
		consents   = make(map[string]*ConsentResult) // nil entry = consent absent
		recordErrs []error
	)

	for _, composite := range composites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		patientID, category, err := splitComposite(composite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
		}

		value, err := e.vault.Retrieve(ctx, composite)
		if errors.Is(err, ErrDecryptionFailed) || errors.Is(err, ErrCiphertextTooShort) {
			e.logger.Error().
				Str("composite_key", composite).
				Err(err).
				Msg("record excluded from response")
			recordErrs = append(recordErrs, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: retrieving %q: %w", ErrRetrieval, composite, err)
		}

		scope, ok := consents[patientID]
		if !ok {
			result, found, err := e.consent.GetConsent(ctx, patientID)
			if err != nil {
				return nil, fmt.Errorf("%w: resolving consent for %q: %w", ErrRetrieval, patientID, err)
			}
			if found {
				scope = &result
			}
			consents[patientID] = scope
		}
		if scope == nil {
			e.logger.Debug().
				Str("patient_id", patientID).
				Msg("patient has no consent record, excluding")
			continue
		}
		if !scope.Covers(category) {
			continue
		}

		patient, ok := grouped[patientID]
		if !ok {
			patient = &PatientData{UserID: patientID}
			grouped[patientID] = patient
			order = append(order, patientID)
		}
		patient.entries = append(patient.entries, categoryEntry{
			name:  category.String(),
			value: value,
		})
	}

	results := make([]PatientData, 0, len(order))
	for _, patientID := range order {
		results = append(results, *grouped[patientID])
	}
	return results, errors.Join(recordErrs...)
}

// splitComposite decodes a composite key using the fixed-width rule: the
// first 36 characters are the canonical patient id, the remainder after a
// one-character separator is the category identifier.
func splitComposite(composite string) (string, PatientDataCategory, error) {
	if len(composite) < PatientIDLength+2 {
		return "", 0, fmt.Errorf("composite key %q too short", composite)
	}
	patientID := composite[:PatientIDLength]
	if _, err := uuid.Parse(patientID); err != nil {
		return "", 0, fmt.Errorf("composite key %q: invalid patient id: %w", composite, err)
	}
	id, err := uuid.Parse(composite[PatientIDLength+1:])
	if err != nil {
		return "", 0, fmt.Errorf("composite key %q: invalid category identifier: %w", composite, err)
	}
	category, err := CategoryByID(id)
	if err != nil {
		return "", 0, fmt.Errorf("composite key %q: %w", composite, err)
	}
	return patientID, category, nil
}
