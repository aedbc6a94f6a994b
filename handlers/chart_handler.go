package handlers

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
)

const (
	animationTick = 30 * time.Millisecond
	animationStep = 4

	qualityScale = 0.95
	jitterBound  = 5

	placeholderReadout = "--"
)

// ChartHandler drives the two gauge roles. Each gauge renders two
// segments that always sum to 100; the complement is recomputed on every
// write, never carried. Updates set a target and return immediately; the
// animator goroutine steps the visible value toward the target and pushes
// a frame to every surface per tick, so a newer Update or Reset simply
// replaces the target mid-flight (last write wins).
type ChartHandler struct {
	session  *TriageSession
	isActive bool

	mu      sync.Mutex
	targets map[models.GaugeRole]models.GaugeState
	current map[models.GaugeRole]int
}

func InitChartHandler(session *TriageSession) *ChartHandler {
	session.Logger.Info("Initializing Chart Handler...")

	h := &ChartHandler{
		session:  session,
		isActive: true,
		targets:  make(map[models.GaugeRole]models.GaugeState),
		current:  make(map[models.GaugeRole]int),
	}
	h.mu.Lock()
	h.resetLocked()
	h.mu.Unlock()

	// Start the animator goroutine
	go h.run()

	return h
}

// Update retargets both gauges from one confidence reading.
//
// The quality gauge is a cosmetic proxy derived from confidence with a
// small random perturbation. It is NOT a measured quantity: it exists so
// the secondary dial moves plausibly, is recomputed on every call, and
// must never feed back into anything accuracy-bearing.
func (h *ChartHandler) Update(confidence int, positiveFinding bool) {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	accent := models.AccentNeutral
	if positiveFinding {
		accent = models.AccentAlert
	}

	quality := int(math.Round(float64(confidence)*qualityScale)) + rand.IntN(jitterBound+1)
	if quality > 100 {
		quality = 100
	}

	h.mu.Lock()
	h.targets[models.GaugeConfidence] = models.NewGaugeState(confidence, accent, fmt.Sprintf("%d%%", confidence))
	h.targets[models.GaugeQuality] = models.NewGaugeState(quality, models.AccentNeutral, fmt.Sprintf("%d%%", quality))
	h.mu.Unlock()
}

// Reset returns both gauges to the empty state. Calling it again is a
// no-op, the targets are already at zero.
func (h *ChartHandler) Reset() {
	h.mu.Lock()
	h.resetLocked()
	h.mu.Unlock()
}

func (h *ChartHandler) resetLocked() {
	h.targets[models.GaugeConfidence] = models.NewGaugeState(0, models.AccentNeutral, placeholderReadout)
	h.targets[models.GaugeQuality] = models.NewGaugeState(0, models.AccentNeutral, placeholderReadout)
}

// State returns the target state of one gauge role.
func (h *ChartHandler) State(role models.GaugeRole) models.GaugeState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.targets[role]
}

func (h *ChartHandler) Close() {
	h.session.Logger.Info("Closing Chart Handler")
	h.isActive = false
}

func (h *ChartHandler) run() {
	h.session.Logger.Debug("Chart animator started")

	ticker := time.NewTicker(animationTick)
	defer ticker.Stop()

	for h.isActive {
		select {
		case <-ticker.C:
			h.step()
		case <-h.session.CurrentContext.Done():
			h.session.Logger.Debug("Chart animator stopped")
			return
		}
	}
}

// step advances every gauge one tick toward its target and collects the
// frames to push. Frames for both roles go out in the same pass so the
// primary and duplicate surfaces always see the same values.
func (h *ChartHandler) step() {
	h.mu.Lock()
	var frames []map[string]interface{}
	for role, target := range h.targets {
		position := h.current[role]
		if position == target.Value {
			continue
		}

		delta := target.Value - position
		if delta > animationStep {
			delta = animationStep
		} else if delta < -animationStep {
			delta = -animationStep
		}
		position += delta
		h.current[role] = position

		frame := models.NewGaugeState(position, target.Accent, target.Readout)
		frames = append(frames, gaugeFrame(role, frame))
	}
	h.mu.Unlock()

	for _, frame := range frames {
		h.session.Broadcast("gauge_update", frame)
	}
}

func gaugeFrame(role models.GaugeRole, state models.GaugeState) map[string]interface{} {
	return map[string]interface{}{
		"role":     role,
		"segments": []int{state.Value, state.Complement},
		"accent":   state.Accent,
		"readout":  state.Readout,
	}
}
