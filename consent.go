package phivault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ConsentTerms records, per category, whether the patient agreed to share it.
// Ungranted terms are omitted from the serialized form, so the recorded
// contents name exactly the categories in the patient's consent scope.
type ConsentTerms struct {
	Identifiers    bool `json:"Identifiers,omitempty"`
	MedicalRecords bool `json:"MedicalRecords,omitempty"`
	ContactInfo    bool `json:"ContactInfo,omitempty"`
	InsuranceInfo  bool `json:"InsuranceInfo,omitempty"`
	FinancialInfo  bool `json:"FinancialInfo,omitempty"`
	BiometricData  bool `json:"BiometricData,omitempty"`
}

// Granted reports whether the named category is covered by the terms.
func (t ConsentTerms) Granted(c PatientDataCategory) bool {
	switch c {
	case Identifiers:
		return t.Identifiers
	case MedicalRecords:
		return t.MedicalRecords
	case ContactInfo:
		return t.ContactInfo
	case InsuranceInfo:
		return t.InsuranceInfo
	case FinancialInfo:
		return t.FinancialInfo
	case BiometricData:
		return t.BiometricData
	}
	return false
}

// ConsentRequest is the consent grant submitted for a patient. Its serialized
// form becomes the ledger entry contents.
type ConsentRequest struct {
	PatientID   string       `json:"PatientId"`
	PatientName string       `json:"PatientName"`
	Terms       ConsentTerms `json:"ConsentTerms"`
}

// ConsentResult is a patient's resolved consent record. Contents holds the
// serialized grant as recorded in the ledger; it is nil when the ledger entry
// exists but carries no contents field.
type ConsentResult struct {
	PatientID string
	Timestamp time.Time
	Contents  json.RawMessage
}

// Covers reports whether the recorded contents name the given category. A
// result with nil contents covers nothing.
func (r ConsentResult) Covers(c PatientDataCategory) bool {
	return bytes.Contains(r.Contents, []byte(`"`+c.String()+`"`))
}

// ledgerPayload is the shape appended to the ledger for one consent grant.
type ledgerPayload struct {
	PatientID string    `json:"patientId"`
	Timestamp time.Time `json:"timestamp"`
	Contents  string    `json:"contents"`
}

// ConsentService records and resolves patient consent. Creation is
// write-once: at most one consent record may ever be created per patient, and
// this module never updates or deletes one.
//
// The ledger append and the index insert are two independent calls with no
// transaction across them. The append happens first, so a crash in between
// orphans a ledger entry with no pointer; the OrphanHook reports the cases
// the service can observe.
type ConsentService struct {
	ledger     Ledger
	index      ConsentIndex
	partition  string
	orphanHook OrphanHook
	logger     zerolog.Logger
	now        func() time.Time
}

// ConsentOption configures a ConsentService during construction.
type ConsentOption func(*ConsentService) error

// WithConsentLogger sets the logger used for consent operations.
func WithConsentLogger(logger zerolog.Logger) ConsentOption {
	return func(s *ConsentService) error {
		s.logger = logger
		return nil
	}
}

// WithConsentPartition overrides the index partition consent pointers are
// stored under.
func WithConsentPartition(partition string) ConsentOption {
	return func(s *ConsentService) error {
		if partition == "" {
			return fmt.Errorf("%w: consent partition cannot be empty", ErrInvalidConfiguration)
		}
		s.partition = partition
		return nil
	}
}

// WithConsentClock overrides the time source. Intended for tests.
func WithConsentClock(now func() time.Time) ConsentOption {
	return func(s *ConsentService) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfiguration)
		}
		s.now = now
		return nil
	}
}

// WithConsentOrphanHook sets the hook invoked when an index insert fails
// after the ledger append already landed.
func WithConsentOrphanHook(hook OrphanHook) ConsentOption {
	return func(s *ConsentService) error {
		s.orphanHook = hook
		return nil
	}
}

// NewConsentService creates a ConsentService over the given ledger and index.
func NewConsentService(ledger Ledger, index ConsentIndex, opts ...ConsentOption) (*ConsentService, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger cannot be nil", ErrInvalidConfiguration)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: consent index cannot be nil", ErrInvalidConfiguration)
	}
	s := &ConsentService{
		ledger:    ledger,
		index:     index,
		partition: DefaultConsentPartition,
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateConsent appends a patient's consent grant to the ledger and records
// the index pointer to it. It fails with ErrAlreadyExists if the patient
// already has a consent record; consent is never upserted.
func (s *ConsentService) CreateConsent(ctx context.Context, req ConsentRequest) (ConsentResult, error) {
	if req.PatientID == "" {
		return ConsentResult{}, fmt.Errorf("%w: patient id is required", ErrInvalidPayload)
	}

	if _, err := s.index.Get(ctx, s.partition, req.PatientID); err == nil {
		return ConsentResult{}, fmt.Errorf("%w: consent for patient %q", ErrAlreadyExists, req.PatientID)
	} else if !errors.Is(err, ErrNotFound) {
		return ConsentResult{}, fmt.Errorf("checking consent index for %q: %w", req.PatientID, err)
	}

	contents, err := json.Marshal(req)
	if err != nil {
		return ConsentResult{}, fmt.Errorf("serializing consent for %q: %w", req.PatientID, err)
	}
	ts := s.now().UTC()
	payload, err := json.Marshal(ledgerPayload{
		PatientID: req.PatientID,
		Timestamp: ts,
		Contents:  string(contents),
	})
	if err != nil {
		return ConsentResult{}, fmt.Errorf("serializing ledger entry for %q: %w", req.PatientID, err)
	}

	txID, err := s.ledger.Append(ctx, payload)
	if err != nil {
		return ConsentResult{}, fmt.Errorf("%w: appending consent for %q: %v", ErrLedgerUnavailable, req.PatientID, err)
	}

	err = s.index.Insert(ctx, s.partition, ConsentPointer{
		PatientID:     req.PatientID,
		TransactionID: txID,
		TimestampUTC:  ts,
	})
	if err != nil {
		// The entry is durable but unreferenced either way.
		s.notifyOrphan(ctx, txID)
		if errors.Is(err, ErrAlreadyExists) {
			return ConsentResult{}, fmt.Errorf("%w: consent for patient %q", ErrAlreadyExists, req.PatientID)
		}
		return ConsentResult{}, fmt.Errorf("indexing consent for %q: %w", req.PatientID, err)
	}

	s.logger.Info().
		Str("patient_id", req.PatientID).
		Str("transaction_id", txID).
		Msg("consent recorded")
	return ConsentResult{PatientID: req.PatientID, Timestamp: ts, Contents: contents}, nil
}

// GetConsent resolves a patient's consent scope. Absence of a consent record
// is not an error: the second return value reports whether one exists. A
// ledger entry missing its contents field yields a result with nil Contents
// rather than a failure.
func (s *ConsentService) GetConsent(ctx context.Context, patientID string) (ConsentResult, bool, error) {
	ptr, err := s.index.Get(ctx, s.partition, patientID)
	if errors.Is(err, ErrNotFound) {
		return ConsentResult{}, false, nil
	}
	if err != nil {
		return ConsentResult{}, false, fmt.Errorf("reading consent index for %q: %w", patientID, err)
	}

	entry, err := s.ledger.Read(ctx, ptr.TransactionID)
	if err != nil {
		return ConsentResult{}, false, fmt.Errorf("%w: reading consent entry %s: %v", ErrLedgerUnavailable, ptr.TransactionID, err)
	}

	result := ConsentResult{PatientID: patientID, Timestamp: ptr.TimestampUTC}
	var payload struct {
		Contents *string `json:"contents"`
	}
	if err := json.Unmarshal(entry.Contents, &payload); err == nil && payload.Contents != nil {
		result.Contents = json.RawMessage(*payload.Contents)
	}
	return result, true, nil
}

func (s *ConsentService) notifyOrphan(ctx context.Context, txID string) {
	s.logger.Error().
		Str("transaction_id", txID).
		Msg("consent ledger entry has no index pointer")
	if s.orphanHook != nil {
		s.orphanHook(ctx, "ledger", txID)
	}
}
