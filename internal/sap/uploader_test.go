package sap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/translogix/invoicing/internal/models"
)

// fakeClient is a scripted TransferClient recording every call.
type fakeClient struct {
	connectErr error
	ensureErr  error
	uploadErr  error
	listFiles  []string
	listErr    error

	connectCalls int
	ensureCalls  int
	uploadCalls  int
	closeCalls   int

	profile      ConnectionProfile
	uploadedName string
	uploadedData []byte
}

func (f *fakeClient) Connect(_ context.Context, profile ConnectionProfile) error {
	f.connectCalls++
	f.profile = profile
	return f.connectErr
}

func (f *fakeClient) EnsureDirectory(string) error {
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeClient) List(string) ([]RemoteEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	entries := make([]RemoteEntry, 0, len(f.listFiles))
	for _, name := range f.listFiles {
		entries = append(entries, RemoteEntry{Name: name, Size: 128, Type: EntryFile})
	}
	return entries, nil
}

func (f *fakeClient) UploadStream(name string, content []byte) error {
	f.uploadCalls++
	f.uploadedName = name
	f.uploadedData = content
	if f.uploadErr != nil {
		return f.uploadErr
	}
	// The file appears in subsequent listings unless the test scripted
	// a fixed listing.
	if f.listFiles == nil {
		f.listFiles = []string{name}
	}
	return nil
}

func (f *fakeClient) Close() error {
	f.closeCalls++
	return nil
}

// fakeStore is an in-memory InvoiceStore.
type fakeStore struct {
	invoice   *models.Invoice
	findErr   error
	recordErr error
	recorded  []models.DeliveryStamp
}

func (s *fakeStore) FindInvoice(context.Context, string) (*models.Invoice, error) {
	return s.invoice, s.findErr
}

func (s *fakeStore) RecordSent(_ context.Context, _ string, stamp models.DeliveryStamp) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, stamp)
	return nil
}

func invoiceWithDocument(id string) *models.Invoice {
	now := time.Now()
	return &models.Invoice{
		ID:                  id,
		ClientName:          "Norddeich Spedition",
		DocumentPath:        "documents/" + id + ".xml",
		DocumentGeneratedAt: &now,
	}
}

// newTestUploader wires an Uploader whose client factory hands out the
// given fakes in order.
func newTestUploader(store InvoiceStore, clients ...*fakeClient) (*Uploader, *int) {
	u := NewUploader(baseSAPConfig(), store, nil)
	served := 0
	u.newClient = func(Protocol, *TransferLog) TransferClient {
		c := clients[served]
		served++
		return c
	}
	return u, &served
}

func TestUpload_Success(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-7")}
	client := &fakeClient{}
	u, _ := newTestUploader(store, client)

	outcome, log, err := u.Upload(context.Background(), "INV-7", "INV-7.xml", []byte("<Invoice/>"))
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.True(t, outcome.VerifiedOnRemote)
	assert.True(t, outcome.StatusRecorded)
	assert.Equal(t, "INV-7.xml", outcome.RemoteFileName)
	assert.Equal(t, len("<Invoice/>"), outcome.UploadedBytes)
	assert.Equal(t, ProtocolFTP, outcome.Protocol)

	assert.Equal(t, 1, client.connectCalls)
	assert.Equal(t, 1, client.closeCalls, "close exactly once on success")
	assert.Equal(t, []byte("<Invoice/>"), client.uploadedData)

	require.Len(t, store.recorded, 1)
	assert.Equal(t, "INV-7.xml", store.recorded[0].FileName)
	assert.Equal(t, "ftp", store.recorded[0].Protocol)

	assert.Greater(t, log.Len(), 0)
}

func TestUpload_DerivesFileNameWhenEmpty(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-9")}
	client := &fakeClient{}
	u, _ := newTestUploader(store, client)

	outcome, _, err := u.Upload(context.Background(), "INV-9", "", []byte("<Invoice/>"))
	require.NoError(t, err)

	assert.Contains(t, outcome.RemoteFileName, "invoice_INV-9_")
	assert.Contains(t, outcome.RemoteFileName, ".xml")
	assert.NotContains(t, outcome.RemoteFileName, ":")
}

func TestUpload_InvoiceNotFound(t *testing.T) {
	store := &fakeStore{invoice: nil}
	u, served := newTestUploader(store)

	outcome, log, err := u.Upload(context.Background(), "INV-404", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StageValidate, outcome.FailureStage)
	assert.Equal(t, 0, *served, "no client built before validation passes")
	assert.Greater(t, log.Len(), 0)
}

func TestUpload_NoDocumentPrecondition(t *testing.T) {
	// Scenario: the invoice exists but no document was generated; the
	// failure must happen before any network activity.
	store := &fakeStore{invoice: &models.Invoice{ID: "INV-1"}}
	u, served := newTestUploader(store)

	outcome, log, err := u.Upload(context.Background(), "INV-1", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, StageValidate, outcome.FailureStage)
	assert.Equal(t, 0, *served)
	for _, entry := range log.Entries() {
		assert.NotContains(t, entry.Message, "connecting")
		assert.NotContains(t, entry.Message, "connected")
	}
}

func TestUpload_TransportFailureDoesNotTriggerTLSRetry(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-2")}
	client := &fakeClient{connectErr: fmt.Errorf("%w: dial: %w", ErrConnection,
		&net.OpError{Op: "dial", Err: errors.New("connection refused")})}
	u, served := newTestUploader(store, client)

	outcome, _, err := u.Upload(context.Background(), "INV-2", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, StageConnect, outcome.FailureStage)
	assert.Equal(t, 1, *served, "a network error must not queue the TLS variant")
	assert.Equal(t, 0, client.closeCalls, "never-opened connections are not closed")
}

func TestUpload_AuthFailureFallsBackToImplicitTLS(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-3")}
	authErr := fmt.Errorf("%w: login: %w", ErrConnection,
		&textproto.Error{Code: 530, Msg: "Login incorrect"})
	plain := &fakeClient{connectErr: authErr}
	tls := &fakeClient{}
	u, served := newTestUploader(store, plain, tls)

	outcome, _, err := u.Upload(context.Background(), "INV-3", "f.xml", []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, 2, *served)
	assert.Equal(t, ProtocolFTPS, tls.profile.Protocol, "fallback keeps credentials, switches framing")
	assert.Equal(t, plain.profile.Username, tls.profile.Username)
	assert.Equal(t, ProtocolFTPS, outcome.Protocol)
	assert.True(t, outcome.Success)

	assert.Equal(t, 0, plain.closeCalls)
	assert.Equal(t, 1, tls.closeCalls)
}

func TestUpload_NavigateFailureIsFatal(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-4")}
	client := &fakeClient{ensureErr: fmt.Errorf("%w: enter failed", ErrNavigation)}
	u, served := newTestUploader(store, client)

	outcome, _, err := u.Upload(context.Background(), "INV-4", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNavigation)
	assert.Equal(t, StageNavigate, outcome.FailureStage)
	assert.Equal(t, 1, *served, "no protocol fallback after a successful connect")
	assert.Equal(t, 0, client.uploadCalls)
	assert.Equal(t, 1, client.closeCalls, "close exactly once on navigate failure")
}

func TestUpload_UploadFailure(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-5")}
	client := &fakeClient{uploadErr: fmt.Errorf("%w: STOR: broken pipe", ErrTransfer)}
	u, _ := newTestUploader(store, client)

	outcome, _, err := u.Upload(context.Background(), "INV-5", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTransfer)
	assert.Equal(t, StageUpload, outcome.FailureStage)
	assert.Equal(t, 1, client.closeCalls)
	assert.Empty(t, store.recorded)
}

func TestUpload_VerificationMissDowngrades(t *testing.T) {
	// Scenario: the upload call returns normally but the listing does
	// not show the file yet (remote caching delay).
	store := &fakeStore{invoice: invoiceWithDocument("INV-6")}
	client := &fakeClient{listFiles: []string{"unrelated.xml"}}
	u, _ := newTestUploader(store, client)

	outcome, log, err := u.Upload(context.Background(), "INV-6", "INV-6.xml", []byte("<Invoice/>"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrVerification)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.VerifiedOnRemote)
	assert.Equal(t, StageVerify, outcome.FailureStage)
	assert.Equal(t, 1, client.uploadCalls, "the upload call itself returned normally")
	assert.Equal(t, 1, client.closeCalls)
	assert.Empty(t, store.recorded, "unverified transfers are not recorded as sent")

	var sawUploadSuccess bool
	for _, entry := range log.Entries() {
		if entry.Level == LevelSuccess && entry.Message == "document uploaded" {
			sawUploadSuccess = true
		}
	}
	assert.True(t, sawUploadSuccess)
}

func TestUpload_RecordFailureIsWarningNotFailure(t *testing.T) {
	store := &fakeStore{
		invoice:   invoiceWithDocument("INV-8"),
		recordErr: fmt.Errorf("%w: no rows", ErrUpdate),
	}
	client := &fakeClient{}
	u, _ := newTestUploader(store, client)

	outcome, log, err := u.Upload(context.Background(), "INV-8", "INV-8.xml", []byte("<Invoice/>"))
	require.NoError(t, err, "the transfer is a fact; recording failure is metadata")

	assert.True(t, outcome.Success)
	assert.False(t, outcome.StatusRecorded)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "not recorded")

	var sawWarning bool
	for _, entry := range log.Entries() {
		if entry.Level == LevelWarning {
			sawWarning = true
		}
	}
	assert.True(t, sawWarning)
}

func TestUpload_EveryVariantFails(t *testing.T) {
	store := &fakeStore{invoice: invoiceWithDocument("INV-10")}
	authErr := fmt.Errorf("%w: login: %w", ErrConnection,
		&textproto.Error{Code: 530, Msg: "Login incorrect"})
	plain := &fakeClient{connectErr: authErr}
	tls := &fakeClient{connectErr: fmt.Errorf("%w: tls handshake failed", ErrConnection)}
	u, served := newTestUploader(store, plain, tls)

	outcome, _, err := u.Upload(context.Background(), "INV-10", "f.xml", []byte("x"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, StageConnect, outcome.FailureStage)
	assert.Equal(t, 2, *served, "the variant list is finite and exhausted deterministically")
	assert.Equal(t, 0, plain.closeCalls)
	assert.Equal(t, 0, tls.closeCalls)
}
