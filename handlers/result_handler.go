package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"go.uber.org/zap"
)

// Short fixed delay before the confidence bar width is pushed, so the
// result surface has laid out before the bar animates. Cosmetic only.
const barRevealDelay = 60 * time.Millisecond

// ResultHandler consumes prediction outcomes, routes them to the result
// or error surface, drives the gauges, and retains the latest successful
// analysis for the report exporter. Only one of the two surfaces is ever
// visible: success hides the error banner, failure leaves the result
// surface hidden (and the gauges untouched).
type ResultHandler struct {
	session  *TriageSession
	isActive bool

	mu     sync.Mutex
	latest *models.PredictionResult
}

func InitResultHandler(session *TriageSession) *ResultHandler {
	session.Logger.Info("Initializing Result Handler...")

	h := &ResultHandler{
		session:  session,
		isActive: true,
	}

	// Start the outcome consumer goroutine
	go h.run()

	return h
}

func (h *ResultHandler) run() {
	h.session.Logger.Debug("Result handler goroutine started")

	for h.isActive {
		select {
		case outcome, ok := <-h.session.OutcomeCh:
			if !ok {
				h.session.Logger.Debug("Outcome channel closed")
				return
			}
			h.handleOutcome(outcome)
		case <-h.session.CurrentContext.Done():
			h.session.Logger.Debug("Result handler context cancelled")
			return
		}
	}
}

// handleOutcome is the single cleanup path: every outcome kind clears the
// loading indicator and re-arms the submit guard exactly once before it
// is routed.
func (h *ResultHandler) handleOutcome(outcome models.PredictionOutcome) {
	h.session.Broadcast("loading", map[string]bool{"active": false})
	h.session.clearInferenceInFlight()

	switch outcome.Kind {
	case models.OutcomeSuccess:
		h.presentSuccess(outcome.Result)
	case models.OutcomeRejected, models.OutcomeTransportFailure:
		h.session.Logger.Info("Inference did not produce a result",
			zap.Int("kind", int(outcome.Kind)),
			zap.String("message", outcome.Message))
		h.session.Broadcast("error_banner", map[string]string{"message": outcome.Message})
	}
}

func (h *ResultHandler) presentSuccess(result *models.PredictionResult) {
	h.mu.Lock()
	h.latest = result
	h.mu.Unlock()

	h.session.Logger.Info("Presenting analysis result",
		zap.String("prediction", result.Prediction),
		zap.Int("confidence", result.Confidence))

	h.session.Broadcast("result", resultPayload(result))

	session := h.session
	confidence := result.Confidence
	time.AfterFunc(barRevealDelay, func() {
		session.Broadcast("confidence_bar", map[string]int{"width_pct": confidence})
	})

	h.session.ChartHandler.Update(result.Confidence, result.Positive())

	go h.storeAnalysisContext(result)
}

func resultPayload(result *models.PredictionResult) map[string]interface{} {
	theme := models.AccentNeutral
	if result.Positive() {
		theme = models.AccentAlert
	}
	return map[string]interface{}{
		"prediction":      result.Prediction,
		"confidence_text": fmt.Sprintf("%d%%", result.Confidence),
		"normal_prob":     result.NormalProb,
		"pneumonia_prob":  result.PneumoniaProb,
		"theme":           theme,
	}
}

// Latest returns the retained result, or nil when none is held.
func (h *ResultHandler) Latest() *models.PredictionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// RestoreLatest returns the retained result, falling back to the redis
// context record so a duplicate surface attaching mid-session can render
// the analysis the primary already shows.
func (h *ResultHandler) RestoreLatest() *models.PredictionResult {
	if latest := h.Latest(); latest != nil {
		return latest
	}
	if h.session.RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := h.session.RedisClient.Get(ctx, h.contextKey()).Result()
	if err != nil {
		return nil
	}

	var result models.PredictionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		h.session.Logger.Warn("Stored analysis context was not decodable", zap.Error(err))
		return nil
	}

	h.mu.Lock()
	h.latest = &result
	h.mu.Unlock()
	return &result
}

func (h *ResultHandler) Clear() {
	h.mu.Lock()
	h.latest = nil
	h.mu.Unlock()

	go h.dropAnalysisContext()
}

func (h *ResultHandler) Close() {
	h.session.Logger.Info("Closing Result Handler")
	h.isActive = false
	h.dropAnalysisContext()
}

func (h *ResultHandler) contextKey() string {
	return fmt.Sprintf("pneumoscan:session:%s:analysis", h.session.ID)
}

// storeAnalysisContext keeps the latest analysis in redis for the session
// lifetime, keyed by session ID. The TTL is a safety net; the record is
// dropped explicitly on clear and on session stop.
func (h *ResultHandler) storeAnalysisContext(result *models.PredictionResult) {
	if h.session.RedisClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(result)
	if err != nil {
		h.session.Logger.Error("Failed to marshal analysis context", zap.Error(err))
		return
	}

	if err := h.session.RedisClient.Set(ctx, h.contextKey(), payload, h.session.Config.Redis.TTL).Err(); err != nil {
		h.session.Logger.Error("Failed to store analysis context", zap.Error(err))
		return
	}

	h.session.Logger.Debug("Analysis context stored")
}

func (h *ResultHandler) dropAnalysisContext() {
	if h.session.RedisClient == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.session.RedisClient.Del(ctx, h.contextKey()).Err(); err != nil {
		h.session.Logger.Warn("Failed to drop analysis context", zap.Error(err))
	}
}
