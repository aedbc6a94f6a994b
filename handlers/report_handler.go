package handlers

import (
	"context"
	"encoding/base64"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/utils"
	"go.uber.org/zap"
)

// ReportFilename is the fixed download name for the exported report.
const ReportFilename = "PneumoScan_Report.pdf"

const reportFailureMessage = "Could not generate the report. Please try again."

// ReportBackend abstracts the /download-report endpoint for the session.
type ReportBackend interface {
	Download(ctx context.Context, result *models.PredictionResult) ([]byte, error)
}

// ReportHandler exports the retained analysis as a report artifact and
// hands it to the surfaces as a browser download.
type ReportHandler struct {
	session *TriageSession
	backend ReportBackend
}

func InitReportHandler(session *TriageSession) *ReportHandler {
	session.Logger.Info("Initializing Report Handler...")

	return &ReportHandler{
		session: session,
		backend: utils.NewReportClient(session.Config.Backend.BaseURL, session.Config.Backend.ReportTimeout),
	}
}

// Export requests the report for the retained analysis. Without one it
// does nothing at all; no request leaves the session.
func (h *ReportHandler) Export() {
	latest := h.session.ResultHandler.Latest()
	if latest == nil {
		h.session.Logger.Debug("No analysis retained, skipping report export")
		return
	}

	go h.export(latest)
}

func (h *ReportHandler) export(result *models.PredictionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), h.session.Config.Backend.ReportTimeout)
	defer cancel()

	h.session.Logger.Info("Exporting report", zap.String("prediction", result.Prediction))

	artifact, err := h.backend.Download(ctx, result)
	if err != nil {
		h.session.Logger.Error("Report export failed", zap.Error(err))
		h.session.Broadcast("report_error", map[string]string{"message": reportFailureMessage})
		return
	}

	h.session.Broadcast("report_ready", map[string]string{
		"filename": ReportFilename,
		"data":     base64.StdEncoding.EncodeToString(artifact),
	})
}
