package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/config"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
)

// recordingSurface captures every pushed event so the state machine can
// be exercised without a real render surface.
type recordingSurface struct {
	mu     sync.Mutex
	pushed []models.SurfaceEvent
}

func (s *recordingSurface) Push(event models.SurfaceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed = append(s.pushed, event)
	return nil
}

func (s *recordingSurface) ofType(eventType string) []models.SurfaceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.SurfaceEvent
	for _, event := range s.pushed {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func (s *recordingSurface) last(eventType string) (models.SurfaceEvent, bool) {
	events := s.ofType(eventType)
	if len(events) == 0 {
		return models.SurfaceEvent{}, false
	}
	return events[len(events)-1], true
}

// lastGauge returns the data of the most recent gauge_update for a role.
func (s *recordingSurface) lastGauge(role models.GaugeRole) (map[string]interface{}, bool) {
	events := s.ofType("gauge_update")
	for i := len(events) - 1; i >= 0; i-- {
		data, ok := events[i].Data.(map[string]interface{})
		if !ok {
			continue
		}
		if data["role"] == role {
			return data, true
		}
	}
	return nil, false
}

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			BaseURL:        "http://127.0.0.1:1",
			PredictTimeout: time.Second,
			ChatTimeout:    time.Second,
			ReportTimeout:  time.Second,
		},
		Redis: config.RedisConfig{TTL: time.Minute},
	}
}

func newTestSession(t *testing.T) (*TriageSession, *recordingSurface) {
	t.Helper()

	session := NewTriageSession("test-session", nil, testConfig())
	t.Cleanup(session.Stop)

	surface := &recordingSurface{}
	session.AttachSurface(surface)
	return session, surface
}

type predictionBackendFunc func(ctx context.Context, file *models.SelectedFile, intake models.PatientIntake) models.PredictionOutcome

func (f predictionBackendFunc) Submit(ctx context.Context, file *models.SelectedFile, intake models.PatientIntake) models.PredictionOutcome {
	return f(ctx, file, intake)
}

type chatBackendFunc func(ctx context.Context, message string) (string, error)

func (f chatBackendFunc) Send(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

type reportBackendFunc func(ctx context.Context, result *models.PredictionResult) ([]byte, error)

func (f reportBackendFunc) Download(ctx context.Context, result *models.PredictionResult) ([]byte, error) {
	return f(ctx, result)
}
