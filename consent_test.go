package phivault_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/phivault"
)

func newConsentService(t *testing.T, opts ...phivault.ConsentOption) (*phivault.ConsentService, *phivault.MemoryLedger, *phivault.MemoryConsentIndex) {
	t.Helper()
	ledger := phivault.NewMemoryLedger()
	index := phivault.NewMemoryConsentIndex()
	svc, err := phivault.NewConsentService(ledger, index, opts...)
	require.NoError(t, err)
	return svc, ledger, index
}

func TestCreateConsent(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, ledger, _ := newConsentService(t, phivault.WithConsentClock(func() time.Time { return fixed }))

	req := phivault.ConsentRequest{
		PatientID:   testPatientID,
		PatientName: "Jane Doe",
		Terms:       phivault.ConsentTerms{Identifiers: true, MedicalRecords: true},
	}
	result, err := svc.CreateConsent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, testPatientID, result.PatientID)
	assert.Equal(t, fixed, result.Timestamp)

	// The recorded contents name exactly the granted categories.
	assert.True(t, result.Covers(phivault.Identifiers))
	assert.True(t, result.Covers(phivault.MedicalRecords))
	assert.False(t, result.Covers(phivault.ContactInfo))
	assert.False(t, result.Covers(phivault.BiometricData))

	// The ledger entry is the source of truth: it embeds the serialized
	// grant under a contents field.
	entry, err := ledger.Read(ctx, "test.1")
	require.NoError(t, err)
	var payload struct {
		PatientID string `json:"patientId"`
		Contents  string `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(entry.Contents, &payload))
	assert.Equal(t, testPatientID, payload.PatientID)
	assert.JSONEq(t, string(result.Contents), payload.Contents)
}

func TestCreateConsentRejectsSecondGrant(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConsentService(t)

	_, err := svc.CreateConsent(ctx, phivault.ConsentRequest{PatientID: testPatientID})
	require.NoError(t, err)

	_, err = svc.CreateConsent(ctx, phivault.ConsentRequest{PatientID: testPatientID})
	assert.ErrorIs(t, err, phivault.ErrAlreadyExists)
}

func TestCreateConsentRequiresPatientID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConsentService(t)

	_, err := svc.CreateConsent(ctx, phivault.ConsentRequest{PatientName: "Jane Doe"})
	assert.ErrorIs(t, err, phivault.ErrInvalidPayload)
}

func TestCreateConsentConcurrentWriteOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConsentService(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateConsent(ctx, phivault.ConsentRequest{PatientID: testPatientID})
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, phivault.ErrAlreadyExists):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent create may win")
	assert.Equal(t, writers-1, conflicts)
}

func TestGetConsentAbsent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConsentService(t)

	_, found, err := svc.GetConsent(ctx, testPatientID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetConsentRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newConsentService(t)

	created, err := svc.CreateConsent(ctx, phivault.ConsentRequest{
		PatientID: testPatientID,
		Terms:     phivault.ConsentTerms{FinancialInfo: true},
	})
	require.NoError(t, err)

	got, found, err := svc.GetConsent(ctx, testPatientID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, testPatientID, got.PatientID)
	assert.JSONEq(t, string(created.Contents), string(got.Contents))
	assert.True(t, got.Covers(phivault.FinancialInfo))
	assert.False(t, got.Covers(phivault.MedicalRecords))
}

func TestGetConsentMissingContents(t *testing.T) {
	ctx := context.Background()
	ledger := phivault.NewMemoryLedger()
	index := phivault.NewMemoryConsentIndex()
	svc, err := phivault.NewConsentService(ledger, index)
	require.NoError(t, err)

	// A ledger entry without a contents field resolves to nil contents,
	// not an error.
	txID, err := ledger.Append(ctx, []byte(`{"patientId":"`+testPatientID+`"}`))
	require.NoError(t, err)
	require.NoError(t, index.Insert(ctx, phivault.DefaultConsentPartition, phivault.ConsentPointer{
		PatientID:     testPatientID,
		TransactionID: txID,
		TimestampUTC:  time.Now().UTC(),
	}))

	got, found, err := svc.GetConsent(ctx, testPatientID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, got.Contents)
	for _, c := range phivault.Categories() {
		assert.False(t, got.Covers(c))
	}
}

type failingConsentIndex struct {
	*phivault.MemoryConsentIndex
}

func (i *failingConsentIndex) Insert(ctx context.Context, partition string, rec phivault.ConsentPointer) error {
	return assert.AnError
}

func TestCreateConsentOrphanHook(t *testing.T) {
	ctx := context.Background()
	ledger := phivault.NewMemoryLedger()
	index := &failingConsentIndex{MemoryConsentIndex: phivault.NewMemoryConsentIndex()}

	var gotArtifact, gotTxID string
	svc, err := phivault.NewConsentService(ledger, index,
		phivault.WithConsentOrphanHook(func(ctx context.Context, artifact, name string) {
			gotArtifact, gotTxID = artifact, name
		}),
	)
	require.NoError(t, err)

	_, err = svc.CreateConsent(ctx, phivault.ConsentRequest{PatientID: testPatientID})
	require.Error(t, err)
	assert.Equal(t, "ledger", gotArtifact)
	assert.Equal(t, "test.1", gotTxID)
}

func TestConsentTermsGranted(t *testing.T) {
	terms := phivault.ConsentTerms{Identifiers: true, BiometricData: true}
	assert.True(t, terms.Granted(phivault.Identifiers))
	assert.True(t, terms.Granted(phivault.BiometricData))
	assert.False(t, terms.Granted(phivault.MedicalRecords))
	assert.False(t, terms.Granted(phivault.ContactInfo))
	assert.False(t, terms.Granted(phivault.InsuranceInfo))
	assert.False(t, terms.Granted(phivault.FinancialInfo))
}
