// Package phivault implements a regulated store for protected health
// information (PHI): category-keyed envelope encryption over a secret store
// and a blob store, a write-once consent ledger with a fast secondary index,
// and a retrieval pipeline that reconciles policy-engine authorization with
// consent scope before emitting a single decrypted byte.
//
// # Architecture
//
// Each PHI record is one opaque JSON payload per (patient, category) pair.
// Storing a record generates a fresh AES-256 key, encrypts the payload with
// CBC mode and an IV prefix, uploads the ciphertext to the blob store, saves
// the key in the secret store under a composite name derived from the patient
// id and the category's fixed identifier, and grants ownership tuples to the
// configured role groups in the policy engine. A record exists iff both
// artifacts exist; updates replace only the ciphertext.
//
// Consent is recorded once per patient, ever: CreateConsent appends the grant
// to the tamper-evident ledger and then records an index pointer to the
// transaction. The ledger entry is the source of truth for consent contents.
//
// QueryEngine answers "what may this subject see right now". Capability and
// consent are independent gates that must both agree: the policy engine lists
// readable (patient, category) objects, the vault decrypts each record, and
// the patient's recorded consent scope decides which categories are included.
// A patient without consent is excluded, never an error.
//
// # Known weaknesses
//
// Ciphertext carries no authentication tag, so its integrity is not
// cryptographically verified. The "already exists" checks on Store and
// CreateConsent are pre-checks, not atomic creates; concurrent duplicate
// writers race past them (the SQLite consent index closes its half with a
// conditional insert). No distributed transaction spans the four external
// services: writes are ordered so the artifact that must not dangle lands
// last, and an OrphanHook reports the partial writes the services can
// observe.
//
// # Quick start
//
//	secrets := phivault.NewMemorySecretStore()
//	blobs := phivault.NewMemoryBlobStore()
//	policy := phivault.NewMemoryPolicyEngine()
//
//	vault, _ := phivault.NewVault(secrets, blobs, policy)
//	consent, _ := phivault.NewConsentService(phivault.NewMemoryLedger(), phivault.NewMemoryConsentIndex())
//	engine, _ := phivault.NewQueryEngine(policy, vault, consent)
//
//	_ = vault.Store(ctx, patientID, phivault.Identifiers, []byte(`{"fullName":"Jane Doe"}`))
//	_, _ = consent.CreateConsent(ctx, phivault.ConsentRequest{
//	    PatientID: patientID,
//	    Terms:     phivault.ConsentTerms{Identifiers: true},
//	})
//	patients, _ := engine.ListReadablePatients(ctx, userID)
//
// Production wiring lives under providers/: HashiCorp Vault KV v2 for
// secrets, AWS S3 for blobs, a SQLite hash chain for the consent ledger and
// index, and OpenFGA for the policy engine.
package phivault
