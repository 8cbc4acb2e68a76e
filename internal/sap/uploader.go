package sap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/config"
	"github.com/translogix/invoicing/internal/models"
)

// Stage names the orchestrator state in which a transfer failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageConnect  Stage = "connect"
	StageNavigate Stage = "navigate"
	StageUpload   Stage = "upload"
	StageVerify   Stage = "verify"
)

// InvoiceStore is the persistence port the orchestrator needs: a
// precondition read before any network activity and the idempotent
// delivery status update afterwards.
type InvoiceStore interface {
	FindInvoice(ctx context.Context, id string) (*models.Invoice, error)
	RecordSent(ctx context.Context, id string, stamp models.DeliveryStamp) error
}

// UploadOutcome is the terminal result of one orchestrator run.
// Success is never claimed without VerifiedOnRemote: the post-upload
// listing, not the upload call's return value, decides it.
type UploadOutcome struct {
	Success          bool      `json:"success"`
	Protocol         Protocol  `json:"protocol,omitempty"`
	RemoteFileName   string    `json:"remote_file_name,omitempty"`
	UploadedBytes    int       `json:"uploaded_bytes"`
	VerifiedOnRemote bool      `json:"verified_on_remote"`
	FailureStage     Stage     `json:"failure_stage,omitempty"`
	StatusRecorded   bool      `json:"status_recorded"`
	TargetPath       string    `json:"target_path,omitempty"`
	UploadTime       time.Time `json:"upload_time,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Uploader orchestrates one synchronous document transfer:
// Validate → Connect → Navigate → Upload → Verify → Close → RecordStatus.
type Uploader struct {
	cfg    config.SAPConfig
	store  InvoiceStore
	logger *zap.Logger

	// test seam; defaults to NewTransferClient
	newClient func(Protocol, *TransferLog) TransferClient
	now       func() time.Time
}

// NewUploader creates an upload orchestrator.
func NewUploader(cfg config.SAPConfig, store InvoiceStore, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		newClient: NewTransferClient,
		now:       time.Now,
	}
}

// Upload transmits document as fileName (derived from the invoice id
// when empty) into the configured drop directory and records delivery
// status on the invoice. The returned TransferLog is populated on every
// path and belongs to the caller.
func (u *Uploader) Upload(ctx context.Context, invoiceID, fileName string, document []byte) (*UploadOutcome, *TransferLog, error) {
	log := NewTransferLog(u.logger.With(
		zap.String("invoice_id", invoiceID),
		zap.String("transfer_id", uuid.NewString()),
	))
	outcome := &UploadOutcome{}

	// Validate: no network activity before the invoice checks pass.
	invoice, err := u.store.FindInvoice(ctx, invoiceID)
	if err != nil {
		outcome.FailureStage = StageValidate
		log.Error("invoice lookup failed", "error", err.Error())
		return outcome, log, fmt.Errorf("lookup invoice %s: %w", invoiceID, err)
	}
	if invoice == nil {
		outcome.FailureStage = StageValidate
		log.Error("invoice does not exist", "invoice_id", invoiceID)
		return outcome, log, fmt.Errorf("invoice %s: %w", invoiceID, ErrNotFound)
	}
	if !invoice.HasDocument() {
		outcome.FailureStage = StageValidate
		log.Error("invoice has no generated document", "invoice_id", invoiceID)
		return outcome, log, fmt.Errorf("invoice %s: %w", invoiceID, ErrPrecondition)
	}
	if len(document) == 0 {
		outcome.FailureStage = StageValidate
		log.Error("empty document payload", "invoice_id", invoiceID)
		return outcome, log, fmt.Errorf("invoice %s: empty document: %w", invoiceID, ErrPrecondition)
	}
	log.Info("invoice validated", "invoice_id", invoiceID, "document_bytes", len(document))

	primary, err := ResolveProfile(u.cfg, Protocol(u.cfg.Protocol), log)
	if err != nil {
		outcome.FailureStage = StageValidate
		log.Error("profile resolution failed", "error", err.Error())
		return outcome, log, err
	}

	client, profile, err := u.connect(ctx, primary, log)
	if err != nil {
		outcome.FailureStage = StageConnect
		return outcome, log, err
	}
	// The connection handle must never leak: Close runs on every exit
	// path below, including cancellation and propagated errors.
	defer client.Close()

	outcome.Protocol = profile.Protocol
	outcome.TargetPath = profile.RemotePath

	// Navigate. The connection already works, so no protocol fallback
	// here; an unusable directory is fatal.
	if err := client.EnsureDirectory(profile.RemotePath); err != nil {
		outcome.FailureStage = StageNavigate
		log.Error("target directory unavailable", "path", profile.RemotePath, "error", err.Error())
		return outcome, log, err
	}
	log.Info("entered target directory", "path", profile.RemotePath)

	name := fileName
	if name == "" {
		name = DeriveRemoteFileName(invoiceID, u.now())
		log.Info("derived remote file name", "file_name", name)
	}

	// Upload.
	if err := client.UploadStream(name, document); err != nil {
		outcome.FailureStage = StageUpload
		log.Error("upload failed", "file_name", name, "error", err.Error())
		return outcome, log, err
	}
	uploadedAt := u.now().UTC()
	outcome.RemoteFileName = name
	outcome.UploadedBytes = len(document)
	outcome.UploadTime = uploadedAt
	log.Success("document uploaded", "file_name", name, "bytes", len(document), "protocol", string(profile.Protocol))

	// Verify: re-list the target and look for the file. A miss is a
	// downgrade, not a hard failure; the file may lag behind remote
	// directory caching.
	outcome.VerifiedOnRemote = u.verify(client, name, log)
	if !outcome.VerifiedOnRemote {
		outcome.FailureStage = StageVerify
		return outcome, log, fmt.Errorf("file %s: %w", name, ErrVerification)
	}

	outcome.Success = true

	// RecordStatus: the transfer is a fact by now; a recording failure
	// is surfaced as a warning, never as upload failure.
	stamp := models.DeliveryStamp{
		Protocol: string(profile.Protocol),
		FileName: name,
		SentAt:   uploadedAt,
	}
	if err := u.store.RecordSent(ctx, invoiceID, stamp); err != nil {
		warning := fmt.Sprintf("transfer succeeded but delivery status was not recorded: %v", err)
		outcome.Warnings = append(outcome.Warnings, warning)
		log.Warning("delivery status update failed", "invoice_id", invoiceID, "error", err.Error())
	} else {
		outcome.StatusRecorded = true
		log.Success("delivery status recorded", "invoice_id", invoiceID, "file_name", name)
	}

	return outcome, log, nil
}

// connect walks the ordered profile variants: the resolved primary
// first, then the implicit-TLS variant — but only when the primary
// failed on credentials rather than transport. Each attempt gets a
// fresh client; the first one that connects wins.
func (u *Uploader) connect(ctx context.Context, primary ConnectionProfile, log *TransferLog) (TransferClient, ConnectionProfile, error) {
	variants := []ConnectionProfile{primary}

	var lastErr error
	for i := 0; i < len(variants); i++ {
		p := variants[i]
		log.Info("connecting", "protocol", string(p.Protocol), "host", p.Host, "port", p.Port, "attempt", i+1)

		client := u.newClient(p.Protocol, log)
		err := client.Connect(ctx, p)
		if err == nil {
			log.Success("connected", "protocol", string(p.Protocol), "host", p.Host)
			return client, p, nil
		}
		lastErr = err

		if p.Protocol == ProtocolFTP && isAuthFailure(err) {
			log.Warning("authentication rejected, queueing implicit-TLS retry", "error", err.Error())
			variants = append(variants, p.ImplicitTLSVariant())
		} else {
			log.Error("connection attempt failed", "protocol", string(p.Protocol), "error", err.Error())
		}
	}

	log.Error("all connection variants exhausted", "attempts", len(variants))
	return nil, ConnectionProfile{}, fmt.Errorf("all %d profile variants failed: %w", len(variants), lastErr)
}

// verify re-lists the target directory and reports whether name is
// present. Listing errors count as unverified.
func (u *Uploader) verify(client TransferClient, name string, log *TransferLog) bool {
	entries, err := client.List("")
	if err != nil {
		log.Warning("verification listing failed", "error", err.Error())
		return false
	}
	for _, e := range entries {
		if e.Name == name {
			log.Success("upload verified in listing", "file_name", name, "size", e.Size)
			return true
		}
	}
	log.Warning("uploaded file not present in listing", "file_name", name, "entries", len(entries))
	return false
}

// DeriveRemoteFileName builds the fallback remote name
// invoice_<id>_<timestamp>.xml with the RFC 3339 colons and dots
// replaced so the name survives every remote filesystem.
func DeriveRemoteFileName(invoiceID string, t time.Time) string {
	ts := t.UTC().Format(time.RFC3339)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("invoice_%s_%s.xml", invoiceID, ts)
}
