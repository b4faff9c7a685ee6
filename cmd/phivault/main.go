// Command phivault is the admin CLI for the PHI store: it wires the
// production providers from environment configuration and exposes the store,
// consent, and query operations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hengadev/phivault"
	"github.com/hengadev/phivault/providers/openfga"
	"github.com/hengadev/phivault/providers/s3blob"
	"github.com/hengadev/phivault/providers/sqliteledger"
	"github.com/hengadev/phivault/providers/vaultkv"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "store":
		err = storeCommand(ctx, args)
	case "retrieve":
		err = retrieveCommand(ctx, args)
	case "update":
		err = updateCommand(ctx, args)
	case "delete":
		err = deleteCommand(ctx, args)
	case "consent-create":
		err = consentCreateCommand(ctx, args)
	case "consent-get":
		err = consentGetCommand(ctx, args)
	case "patients":
		err = patientsCommand(ctx, args)
	case "verify-ledger":
		err = verifyLedgerCommand(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  store           Encrypt and store a PHI record\n")
	fmt.Fprintf(os.Stderr, "  retrieve        Retrieve and decrypt a PHI record\n")
	fmt.Fprintf(os.Stderr, "  update          Re-encrypt an existing PHI record\n")
	fmt.Fprintf(os.Stderr, "  delete          Delete a PHI record\n")
	fmt.Fprintf(os.Stderr, "  consent-create  Record a patient's consent grant\n")
	fmt.Fprintf(os.Stderr, "  consent-get     Resolve a patient's consent scope\n")
	fmt.Fprintf(os.Stderr, "  patients        List PHI readable by a subject\n")
	fmt.Fprintf(os.Stderr, "  verify-ledger   Verify the consent ledger hash chain\n")
	fmt.Fprintf(os.Stderr, "\nConfiguration comes from PHIVAULT_* environment variables (or .env).\n")
}

type services struct {
	vault   *phivault.Vault
	consent *phivault.ConsentService
	engine  *phivault.QueryEngine
	ledger  *sqliteledger.Store
}

func buildServices(ctx context.Context) (*services, error) {
	cfg, err := phivault.LoadConfigFromEnvironment()
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	secrets, err := vaultkv.New(cfg.VaultAddress, cfg.VaultToken, vaultkv.WithMount(cfg.VaultMount))
	if err != nil {
		return nil, err
	}
	blobs, err := s3blob.New(ctx, cfg.S3Bucket, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	ledger, err := sqliteledger.Open(cfg.LedgerPath, cfg.Subledger)
	if err != nil {
		return nil, err
	}
	policy, err := openfga.New(cfg.FGAAPIURL, cfg.FGAStoreID, cfg.FGAModelID)
	if err != nil {
		return nil, err
	}

	vault, err := phivault.NewVault(secrets, blobs, policy, phivault.WithVaultLogger(logger))
	if err != nil {
		return nil, err
	}
	consent, err := phivault.NewConsentService(ledger, ledger, phivault.WithConsentLogger(logger))
	if err != nil {
		return nil, err
	}
	engine, err := phivault.NewQueryEngine(policy, vault, consent, phivault.WithQueryLogger(logger))
	if err != nil {
		return nil, err
	}
	return &services{vault: vault, consent: consent, engine: engine, ledger: ledger}, nil
}

func parsePatientCategory(fs *flag.FlagSet, args []string) (string, phivault.PatientDataCategory, *flag.FlagSet, error) {
	patient := fs.String("patient", "", "Patient id")
	category := fs.String("category", "", "PHI category name, e.g. MedicalRecords")
	fs.Parse(args)
	if *patient == "" {
		return "", 0, fs, fmt.Errorf("-patient is required")
	}
	c, err := phivault.ParseCategory(*category)
	if err != nil {
		return "", 0, fs, err
	}
	return *patient, c, fs, nil
}

func readPayload(fs *flag.FlagSet, dataFlag, fileFlag string) ([]byte, error) {
	if dataFlag != "" {
		return []byte(dataFlag), nil
	}
	if fileFlag != "" {
		return os.ReadFile(fileFlag)
	}
	return nil, fmt.Errorf("one of -data or -file is required")
}

func storeCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	data := fs.String("data", "", "Inline JSON payload")
	file := fs.String("file", "", "Path to a JSON payload file")
	patient, category, fs, err := parsePatientCategory(fs, args)
	if err != nil {
		return err
	}
	payload, err := readPayload(fs, *data, *file)
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	if err := svc.vault.Store(ctx, patient, category, payload); err != nil {
		return err
	}
	fmt.Printf("stored %s\n", phivault.CompositeKey(patient, category))
	return nil
}

func retrieveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	patient, category, _, err := parsePatientCategory(fs, args)
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	value, err := svc.vault.Retrieve(ctx, phivault.CompositeKey(patient, category))
	if err != nil {
		return err
	}
	fmt.Println(string(value))
	return nil
}

func updateCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	data := fs.String("data", "", "Inline JSON payload")
	file := fs.String("file", "", "Path to a JSON payload file")
	patient, category, fs, err := parsePatientCategory(fs, args)
	if err != nil {
		return err
	}
	payload, err := readPayload(fs, *data, *file)
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	if err := svc.vault.Update(ctx, patient, category, payload); err != nil {
		return err
	}
	fmt.Printf("updated %s\n", phivault.CompositeKey(patient, category))
	return nil
}

func deleteCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	patient, category, _, err := parsePatientCategory(fs, args)
	if err != nil {
		return err
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	if err := svc.vault.Delete(ctx, phivault.CompositeKey(patient, category)); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", phivault.CompositeKey(patient, category))
	return nil
}

func consentCreateCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consent-create", flag.ExitOnError)
	patient := fs.String("patient", "", "Patient id")
	name := fs.String("name", "", "Patient name")
	grants := fs.String("grants", "", "Comma-separated category names the patient consents to share")
	fs.Parse(args)
	if *patient == "" {
		return fmt.Errorf("-patient is required")
	}

	var terms phivault.ConsentTerms
	for _, g := range strings.Split(*grants, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		category, err := phivault.ParseCategory(g)
		if err != nil {
			return err
		}
		switch category {
		case phivault.Identifiers:
			terms.Identifiers = true
		case phivault.MedicalRecords:
			terms.MedicalRecords = true
		case phivault.ContactInfo:
			terms.ContactInfo = true
		case phivault.InsuranceInfo:
			terms.InsuranceInfo = true
		case phivault.FinancialInfo:
			terms.FinancialInfo = true
		case phivault.BiometricData:
			terms.BiometricData = true
		}
	}

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	result, err := svc.consent.CreateConsent(ctx, phivault.ConsentRequest{
		PatientID:   *patient,
		PatientName: *name,
		Terms:       terms,
	})
	if err != nil {
		return err
	}
	fmt.Printf("consent recorded for %s at %s\n", result.PatientID, result.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

func consentGetCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consent-get", flag.ExitOnError)
	patient := fs.String("patient", "", "Patient id")
	fs.Parse(args)
	if *patient == "" {
		return fmt.Errorf("-patient is required")
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	result, found, err := svc.consent.GetConsent(ctx, *patient)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("no consent recorded")
		return nil
	}
	fmt.Println(string(result.Contents))
	return nil
}

func patientsCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("patients", flag.ExitOnError)
	user := fs.String("user", "", "Requesting subject's user id")
	fs.Parse(args)
	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	patients, err := svc.engine.ListReadablePatients(ctx, *user)
	if err != nil && len(patients) == 0 {
		return err
	}
	out, marshalErr := json.MarshalIndent(patients, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	fmt.Println(string(out))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: some records were excluded: %v\n", err)
	}
	return nil
}

func verifyLedgerCommand(ctx context.Context, args []string) error {
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.ledger.Close()
	seq, err := svc.ledger.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("chain verification failed at entry %d: %w", seq, err)
	}
	fmt.Println("ledger chain intact")
	return nil
}
