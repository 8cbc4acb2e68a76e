package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/translogix/invoicing/internal/models"
	"github.com/translogix/invoicing/internal/sap"
)

// Transmitter runs one synchronous document transfer.
type Transmitter interface {
	Upload(ctx context.Context, invoiceID, fileName string, document []byte) (*sap.UploadOutcome, *sap.TransferLog, error)
}

// Diagnoser probes the configured host and derives a recommendation.
type Diagnoser interface {
	Diagnose(ctx context.Context, overrides sap.HostOverrides) (*sap.DiagnosticReport, *sap.TransferLog)
}

// InvoiceReader exposes the delivery side effect through the invoice
// read API.
type InvoiceReader interface {
	FindInvoice(ctx context.Context, id string) (*models.Invoice, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	transmitter Transmitter
	diagnoser   Diagnoser
	invoices    InvoiceReader
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(transmitter Transmitter, diagnoser Diagnoser, invoices InvoiceReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		transmitter: transmitter,
		diagnoser:   diagnoser,
		invoices:    invoices,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    interface{}    `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Logs    []sap.LogEntry `json:"logs,omitempty"`
}

// TransmitRequest is the body of POST /api/invoices/:id/transmit
type TransmitRequest struct {
	FileName    string `json:"file_name"`
	DocumentXML string `json:"document_xml" binding:"required"`
}

// TransmitData is the success payload of a transmit call
type TransmitData struct {
	FileName       string `json:"file_name"`
	UploadTime     string `json:"upload_time"`
	FileSize       int    `json:"file_size"`
	TargetPath     string `json:"target_path"`
	Protocol       string `json:"protocol"`
	Verified       bool   `json:"verified"`
	StatusRecorded bool   `json:"status_recorded"`
}

// DiagnoseResponse is the payload of POST /api/sap/diagnose
type DiagnoseResponse struct {
	Results        map[string]*sap.ProbeResult `json:"results"`
	Recommendation sap.Recommendation          `json:"recommendation"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id := c.Param("id")

	invoice, err := h.invoices.FindInvoice(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get invoice", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoice",
		})
		return
	}
	if invoice == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "invoice not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    invoice,
	})
}

// TransmitInvoice handles POST /api/invoices/:id/transmit
func (h *Handlers) TransmitInvoice(c *gin.Context) {
	id := c.Param("id")

	var req TransmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid transmit request", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "document_xml is required",
		})
		return
	}

	outcome, log, err := h.transmitter.Upload(c.Request.Context(), id, req.FileName, []byte(req.DocumentXML))
	if err != nil {
		h.logger.Error("Transmission failed",
			zap.String("id", id),
			zap.String("stage", string(outcome.FailureStage)),
			zap.Error(err))
		c.JSON(transmitStatus(err), Response{
			Success: false,
			Message: "transmission failed at stage " + string(outcome.FailureStage),
			Error:   err.Error(),
			Logs:    log.Entries(),
		})
		return
	}

	message := "invoice transmitted"
	if !outcome.StatusRecorded {
		message = "invoice transmitted; delivery status not recorded"
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data: TransmitData{
			FileName:       outcome.RemoteFileName,
			UploadTime:     outcome.UploadTime.Format(time.RFC3339),
			FileSize:       outcome.UploadedBytes,
			TargetPath:     outcome.TargetPath,
			Protocol:       string(outcome.Protocol),
			Verified:       outcome.VerifiedOnRemote,
			StatusRecorded: outcome.StatusRecorded,
		},
		Logs: log.Entries(),
	})
}

// Diagnose handles POST /api/sap/diagnose
func (h *Handlers) Diagnose(c *gin.Context) {
	var overrides sap.HostOverrides
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&overrides); err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "invalid override payload",
			})
			return
		}
	}

	report, log := h.diagnoser.Diagnose(c.Request.Context(), overrides)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: DiagnoseResponse{
			Results: map[string]*sap.ProbeResult{
				"ftp":  report.FTP,
				"sftp": report.SFTP,
			},
			Recommendation: report.Recommendation,
		},
		Logs: log.Entries(),
	})
}

// transmitStatus maps delivery error kinds onto HTTP statuses
func transmitStatus(err error) int {
	switch {
	case errors.Is(err, sap.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sap.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, sap.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, sap.ErrConnection),
		errors.Is(err, sap.ErrNavigation),
		errors.Is(err, sap.ErrTransfer),
		errors.Is(err, sap.ErrVerification):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
