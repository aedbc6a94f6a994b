package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"go.uber.org/zap"
)

// TransportFailureMessage is the generic retry hint shown whenever the
// inference call fails for any reason other than the validation gate.
const TransportFailureMessage = "Something went wrong while analyzing the image. Please try again."

const xrayFieldName = "xray"

type PredictionClient struct {
	BaseURL string
	Client  *http.Client
}

func NewPredictionClient(baseURL string, timeout time.Duration) *PredictionClient {
	return &PredictionClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// predictResponse is the wire shape of every /predict reply. The backend
// rounds probabilities to two decimals, so the numeric fields are decoded
// as floats and rounded into the integer result model.
type predictResponse struct {
	Prediction    string  `json:"prediction"`
	Message       string  `json:"message"`
	Error         string  `json:"error"`
	Confidence    float64 `json:"confidence"`
	NormalProb    float64 `json:"normal_prob"`
	PneumoniaProb float64 `json:"pneumonia_prob"`
	ImageFilename string  `json:"image_filename"`
	PatientName   string  `json:"patient_name"`
	PatientAge    string  `json:"patient_age"`
	Notes         string  `json:"notes"`
}

// Submit posts the selected image to /predict and classifies the reply
// into success, validation rejection or transport failure. It never
// returns an error; every failure collapses into an outcome.
func (c *PredictionClient) Submit(ctx context.Context, file *models.SelectedFile, intake models.PatientIntake) models.PredictionOutcome {
	body, contentType, err := encodeMultipart(file, intake)
	if err != nil {
		zap.L().Error("Failed to encode inference request", zap.Error(err))
		return transportFailure()
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/predict", body)
	if err != nil {
		zap.L().Error("Failed to create inference request", zap.Error(err))
		return transportFailure()
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.Client.Do(req)
	if err != nil {
		zap.L().Error("Inference request failed", zap.Error(err))
		return transportFailure()
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		zap.L().Error("Failed to read inference response", zap.Error(err))
		return transportFailure()
	}

	var wire predictResponse
	if err := json.Unmarshal(bodyBytes, &wire); err != nil {
		zap.L().Error("Inference response was not decodable JSON",
			zap.Error(err),
			zap.Int("status", resp.StatusCode))
		return transportFailure()
	}

	return classify(wire, resp.StatusCode)
}

func classify(wire predictResponse, status int) models.PredictionOutcome {
	switch {
	case wire.Prediction == models.LabelNormal || wire.Prediction == models.LabelPneumonia:
		result := &models.PredictionResult{
			Prediction:    wire.Prediction,
			Confidence:    roundPct(wire.Confidence),
			NormalProb:    roundPct(wire.NormalProb),
			PneumoniaProb: roundPct(wire.PneumoniaProb),
			ImageFilename: wire.ImageFilename,
			PatientName:   wire.PatientName,
			PatientAge:    wire.PatientAge,
			Notes:         wire.Notes,
		}
		return models.PredictionOutcome{Kind: models.OutcomeSuccess, Result: result}

	case wire.Prediction == models.PredictionInvalidImage:
		message := wire.Message
		if message == "" {
			message = "The uploaded file was not recognized as a chest X-ray."
		}
		return models.PredictionOutcome{Kind: models.OutcomeRejected, Message: message}

	default:
		zap.L().Warn("Unrecognized inference response",
			zap.String("prediction", wire.Prediction),
			zap.String("error", wire.Error),
			zap.Int("status", status))
		return transportFailure()
	}
}

func encodeMultipart(file *models.SelectedFile, intake models.PatientIntake) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(xrayFieldName, file.Name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image payload: %w", err)
	}

	fields := map[string]string{
		"patient_name": intake.PatientName,
		"patient_age":  intake.PatientAge,
		"notes":        intake.Notes,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %q: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func transportFailure() models.PredictionOutcome {
	return models.PredictionOutcome{
		Kind:    models.OutcomeTransportFailure,
		Message: TransportFailureMessage,
	}
}

func roundPct(v float64) int {
	return int(math.Round(v))
}
