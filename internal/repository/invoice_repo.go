package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/models"
	"github.com/translogix/invoicing/internal/sap"
)

// InvoiceRepository handles invoice database operations. The delivery
// status lives in its own invoice_delivery row (one per invoice, absent
// until the first send), mirroring a sub-document of the invoice.
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice record
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, client_name, route_code, amount, document_path, document_generated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.ClientName,
		invoice.RouteCode,
		invoice.Amount,
		invoice.DocumentPath,
		invoice.DocumentGeneratedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.String("id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// FindInvoice retrieves an invoice with its delivery status, or nil
// when it does not exist.
func (r *InvoiceRepository) FindInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	query := `
		SELECT i.id, i.client_name, i.route_code, i.amount,
			i.document_path, i.document_generated_at, i.created_at,
			COALESCE(d.sent_to_sap, 0), d.sent_to_sap_at,
			COALESCE(d.sap_file_name, ''), COALESCE(d.sap_protocol, '')
		FROM invoices i
		LEFT JOIN invoice_delivery d ON d.invoice_id = i.id
		WHERE i.id = ?
	`

	var invoice models.Invoice
	var documentGeneratedAt, sentToSapAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&invoice.ID,
		&invoice.ClientName,
		&invoice.RouteCode,
		&invoice.Amount,
		&invoice.DocumentPath,
		&documentGeneratedAt,
		&invoice.CreatedAt,
		&invoice.SentToSap,
		&sentToSapAt,
		&invoice.SapFileName,
		&invoice.SapProtocol,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if documentGeneratedAt.Valid {
		invoice.DocumentGeneratedAt = &documentGeneratedAt.Time
	}
	if sentToSapAt.Valid {
		invoice.SentToSapAt = &sentToSapAt.Time
	}

	return &invoice, nil
}

// RecordSent persists the delivery outcome onto the invoice's status
// row. The primary strategy patches an existing row in place; when that
// touches nothing (first send, no status row yet), the fallback reads
// what exists, merges the new fields, and writes the whole row back.
// Calling RecordSent twice with the same stamp leaves the same final
// field values; nothing is incremented or appended.
func (r *InvoiceRepository) RecordSent(ctx context.Context, id string, stamp models.DeliveryStamp) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoice_delivery
		SET sent_to_sap = 1, sent_to_sap_at = ?, sap_file_name = ?, sap_protocol = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE invoice_id = ?
	`, stamp.SentAt.UTC(), stamp.FileName, stamp.Protocol, id)
	if err != nil {
		r.logger.Error("Failed to update delivery status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	r.logger.Info("Partial delivery update touched no row, rebuilding status row",
		zap.String("id", id))
	return r.rebuildDeliveryRow(ctx, id, stamp)
}

// rebuildDeliveryRow is the fallback strategy: read the invoice and any
// existing status row, merge the stamp in, and upsert the full row.
func (r *InvoiceRepository) rebuildDeliveryRow(ctx context.Context, id string, stamp models.DeliveryStamp) error {
	invoice, err := r.FindInvoice(ctx, id)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %s: %w", id, sap.ErrUpdate)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO invoice_delivery (invoice_id, sent_to_sap, sent_to_sap_at, sap_file_name, sap_protocol)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(invoice_id) DO UPDATE SET
			sent_to_sap = 1,
			sent_to_sap_at = excluded.sent_to_sap_at,
			sap_file_name = excluded.sap_file_name,
			sap_protocol = excluded.sap_protocol,
			updated_at = CURRENT_TIMESTAMP
	`, id, stamp.SentAt.UTC(), stamp.FileName, stamp.Protocol)
	if err != nil {
		r.logger.Error("Fallback delivery update failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("%w: %v", sap.ErrUpdate, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %s: %w", id, sap.ErrUpdate)
	}

	return nil
}
