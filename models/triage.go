package models

import (
	"time"
)

const (
	LabelNormal    = "NORMAL"
	LabelPneumonia = "PNEUMONIA"

	// Sentinel prediction value returned by the backend's X-ray gate when
	// the upload is not recognizable as a chest X-ray.
	PredictionInvalidImage = "Invalid Image"
)

// SelectedFile is the single image currently chosen for analysis. It is
// replaced wholesale on every new selection; nil means no file chosen.
type SelectedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// PatientIntake carries the optional intake form fields that ride along
// with the image on /predict and are echoed back for the report.
type PatientIntake struct {
	PatientName string
	PatientAge  string
	Notes       string
}

// PredictionResult is the structured result of a successful analysis.
// The backend guarantees NormalProb + PneumoniaProb lands on 100; we do
// not re-enforce that here.
type PredictionResult struct {
	Prediction    string `json:"prediction"`
	Confidence    int    `json:"confidence"`
	NormalProb    int    `json:"normal_prob"`
	PneumoniaProb int    `json:"pneumonia_prob"`
	ImageFilename string `json:"image_filename,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientAge    string `json:"patient_age,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Positive reports whether the finding warrants the alert accent.
func (r *PredictionResult) Positive() bool {
	return r.Prediction == LabelPneumonia
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRejected means the backend's validation gate refused the
	// upload; Message is user-correctable and shown verbatim.
	OutcomeRejected
	// OutcomeTransportFailure covers network errors, undecodable bodies
	// and generic backend errors; Message is a fixed retry hint.
	OutcomeTransportFailure
)

type PredictionOutcome struct {
	Kind    OutcomeKind
	Result  *PredictionResult
	Message string
}

type ChatSender string

const (
	SenderUser      ChatSender = "user"
	SenderAssistant ChatSender = "assistant"
)

// ChatTurn is one entry in the conversation log. A Pending assistant turn
// is the composing placeholder: it occupies its slot from the moment the
// user submits and is resolved in place by ID, so replies that complete
// out of order still land where they were queued.
type ChatTurn struct {
	ID        string     `json:"id"`
	Sender    ChatSender `json:"sender"`
	Text      string     `json:"text"`
	Pending   bool       `json:"pending"`
	Timestamp time.Time  `json:"timestamp"`
}

type GaugeRole string

const (
	GaugeConfidence GaugeRole = "confidence"
	GaugeQuality    GaugeRole = "quality"
)

const (
	AccentNeutral = "neutral"
	AccentAlert   = "alert"
)

// GaugeState is the target state of one gauge role. Complement is always
// recomputed from Value, never carried forward.
type GaugeState struct {
	Value      int    `json:"value"`
	Complement int    `json:"complement"`
	Accent     string `json:"accent"`
	Readout    string `json:"readout"`
}

func NewGaugeState(value int, accent, readout string) GaugeState {
	return GaugeState{
		Value:      value,
		Complement: 100 - value,
		Accent:     accent,
		Readout:    readout,
	}
}

// SurfaceEvent is the envelope for every state push to a render surface.
type SurfaceEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
