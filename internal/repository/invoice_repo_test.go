package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/models"
	"github.com/translogix/invoicing/internal/sap"
)

const testSchema = `
	CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		client_name TEXT NOT NULL DEFAULT '',
		route_code TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		document_path TEXT NOT NULL DEFAULT '',
		document_generated_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE invoice_delivery (
		invoice_id TEXT PRIMARY KEY REFERENCES invoices(id) ON DELETE CASCADE,
		sent_to_sap INTEGER NOT NULL DEFAULT 0,
		sent_to_sap_at DATETIME,
		sap_file_name TEXT NOT NULL DEFAULT '',
		sap_protocol TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
`

func newTestRepo(t *testing.T) *InvoiceRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	// One connection keeps the in-memory database alive for the test
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	return NewInvoiceRepository(db, logger)
}

func seedInvoice(t *testing.T, repo *InvoiceRepository, id string) {
	t.Helper()
	generated := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &models.Invoice{
		ID:                  id,
		ClientName:          "Hansecon Logistik",
		RouteCode:           "HH-MUC",
		Amount:              1480.50,
		DocumentPath:        "documents/" + id + ".xml",
		DocumentGeneratedAt: &generated,
	}))
}

func TestFindInvoice(t *testing.T) {
	repo := newTestRepo(t)
	seedInvoice(t, repo, "INV-100")

	t.Run("returns invoice with empty delivery status", func(t *testing.T) {
		invoice, err := repo.FindInvoice(context.Background(), "INV-100")
		require.NoError(t, err)
		require.NotNil(t, invoice)

		assert.Equal(t, "INV-100", invoice.ID)
		assert.True(t, invoice.HasDocument())
		assert.False(t, invoice.SentToSap)
		assert.Nil(t, invoice.SentToSapAt)
		assert.Empty(t, invoice.SapFileName)
	})

	t.Run("returns nil for unknown id", func(t *testing.T) {
		invoice, err := repo.FindInvoice(context.Background(), "INV-nope")
		require.NoError(t, err)
		assert.Nil(t, invoice)
	})
}

func TestRecordSent_FallbackCreatesDeliveryRow(t *testing.T) {
	// The first send has no delivery row to patch: the targeted update
	// reports zero rows and the full-row rebuild takes over.
	repo := newTestRepo(t)
	seedInvoice(t, repo, "INV-200")

	stamp := models.DeliveryStamp{
		Protocol: "sftp",
		FileName: "INV-200.xml",
		SentAt:   time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.RecordSent(context.Background(), "INV-200", stamp))

	invoice, err := repo.FindInvoice(context.Background(), "INV-200")
	require.NoError(t, err)
	require.NotNil(t, invoice)

	assert.True(t, invoice.SentToSap)
	assert.Equal(t, "INV-200.xml", invoice.SapFileName)
	assert.Equal(t, "sftp", invoice.SapProtocol)
	require.NotNil(t, invoice.SentToSapAt)
	assert.True(t, invoice.SentToSapAt.Equal(stamp.SentAt))
}

func TestRecordSent_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	seedInvoice(t, repo, "INV-300")

	stamp := models.DeliveryStamp{
		Protocol: "ftp",
		FileName: "INV-300.xml",
		SentAt:   time.Date(2026, 5, 2, 11, 0, 0, 0, time.UTC),
	}

	// First call exercises the rebuild fallback, second the targeted
	// update; both must land on identical field values.
	require.NoError(t, repo.RecordSent(context.Background(), "INV-300", stamp))
	first, err := repo.FindInvoice(context.Background(), "INV-300")
	require.NoError(t, err)

	require.NoError(t, repo.RecordSent(context.Background(), "INV-300", stamp))
	second, err := repo.FindInvoice(context.Background(), "INV-300")
	require.NoError(t, err)

	assert.Equal(t, first.SentToSap, second.SentToSap)
	assert.Equal(t, first.SapFileName, second.SapFileName)
	assert.Equal(t, first.SapProtocol, second.SapProtocol)
	assert.True(t, first.SentToSapAt.Equal(*second.SentToSapAt))
}

func TestRecordSent_OverwritesPreviousStamp(t *testing.T) {
	repo := newTestRepo(t)
	seedInvoice(t, repo, "INV-400")

	ctx := context.Background()
	require.NoError(t, repo.RecordSent(ctx, "INV-400", models.DeliveryStamp{
		Protocol: "ftp", FileName: "old.xml", SentAt: time.Now().UTC().Add(-time.Hour),
	}))

	resent := models.DeliveryStamp{
		Protocol: "ftps", FileName: "new.xml", SentAt: time.Now().UTC(),
	}
	require.NoError(t, repo.RecordSent(ctx, "INV-400", resent))

	invoice, err := repo.FindInvoice(ctx, "INV-400")
	require.NoError(t, err)
	assert.Equal(t, "new.xml", invoice.SapFileName)
	assert.Equal(t, "ftps", invoice.SapProtocol)
}

func TestRecordSent_UnknownInvoice(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.RecordSent(context.Background(), "INV-void", models.DeliveryStamp{
		Protocol: "ftp", FileName: "f.xml", SentAt: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sap.ErrUpdate)
}

func TestRecordSent_TouchesOnlyDeliveryFields(t *testing.T) {
	repo := newTestRepo(t)
	seedInvoice(t, repo, "INV-500")

	ctx := context.Background()
	before, err := repo.FindInvoice(ctx, "INV-500")
	require.NoError(t, err)

	require.NoError(t, repo.RecordSent(ctx, "INV-500", models.DeliveryStamp{
		Protocol: "ftp", FileName: "INV-500.xml", SentAt: time.Now().UTC(),
	}))

	after, err := repo.FindInvoice(ctx, "INV-500")
	require.NoError(t, err)

	assert.Equal(t, before.ClientName, after.ClientName)
	assert.Equal(t, before.RouteCode, after.RouteCode)
	assert.Equal(t, before.Amount, after.Amount)
	assert.Equal(t, before.DocumentPath, after.DocumentPath)
}
