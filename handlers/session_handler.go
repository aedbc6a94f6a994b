package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/config"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Surface is one render target of the session: the desktop page, its
// mobile duplicate, a test double. Surfaces are dumb renderers; the
// session owns all state and pushes typed events.
type Surface interface {
	Push(event models.SurfaceEvent) error
}

// PredictionBackend abstracts the inference endpoint for the session.
type PredictionBackend interface {
	Submit(ctx context.Context, file *models.SelectedFile, intake models.PatientIntake) models.PredictionOutcome
}

const EmptySelectionMessage = "Please choose an X-ray image before submitting."

type TriageSession struct {
	ID                   string
	CurrentContext       context.Context
	CancelCurrentContext context.CancelFunc
	RedisClient          *redis.Client
	Logger               *zap.Logger
	Config               *config.Config

	// Outcomes from in-flight inference calls, consumed by the result handler
	OutcomeCh chan models.PredictionOutcome

	surfaceMu sync.Mutex
	surfaces  []Surface

	stateMu           sync.Mutex
	IsActive          bool
	StartTime         time.Time
	LastActivity      time.Time
	inferenceInFlight bool

	predictionClient PredictionBackend

	UploadHandler *UploadHandler
	ChartHandler  *ChartHandler
	ResultHandler *ResultHandler
	ChatHandler   *ChatHandler
	ReportHandler *ReportHandler
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow connections from any origin
	},
}

func NewTriageSession(id string, redisClient *redis.Client, cfg *config.Config) *TriageSession {
	ctx, cancel := context.WithCancel(context.Background())

	// Create a logger with session ID context
	logger := zap.L().With(zap.String("session_id", id))

	session := &TriageSession{
		ID:                   id,
		CurrentContext:       ctx,
		CancelCurrentContext: cancel,
		RedisClient:          redisClient,
		Logger:               logger,
		Config:               cfg,

		OutcomeCh: make(chan models.PredictionOutcome, 10),

		IsActive:     true,
		StartTime:    time.Now(),
		LastActivity: time.Now(),

		predictionClient: utils.NewPredictionClient(cfg.Backend.BaseURL, cfg.Backend.PredictTimeout),
	}

	session.UploadHandler = InitUploadHandler(session)
	session.ChartHandler = InitChartHandler(session)
	session.ResultHandler = InitResultHandler(session)
	session.ChatHandler = InitChatHandler(session)
	session.ReportHandler = InitReportHandler(session)

	return session
}

func (s *TriageSession) AttachSurface(surface Surface) {
	s.surfaceMu.Lock()
	s.surfaces = append(s.surfaces, surface)
	count := len(s.surfaces)
	s.surfaceMu.Unlock()

	s.Logger.Info("Surface attached", zap.Int("surfaces", count))
}

func (s *TriageSession) DetachSurface(surface Surface) int {
	s.surfaceMu.Lock()
	for i, attached := range s.surfaces {
		if attached == surface {
			s.surfaces = append(s.surfaces[:i], s.surfaces[i+1:]...)
			break
		}
	}
	count := len(s.surfaces)
	s.surfaceMu.Unlock()

	s.Logger.Info("Surface detached", zap.Int("surfaces", count))
	return count
}

// Broadcast pushes one event to every attached surface. All surfaces are
// always written together so the primary and its duplicate never drift.
func (s *TriageSession) Broadcast(eventType string, data interface{}) {
	event := models.SurfaceEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	s.surfaceMu.Lock()
	surfaces := make([]Surface, len(s.surfaces))
	copy(surfaces, s.surfaces)
	s.surfaceMu.Unlock()

	for _, surface := range surfaces {
		if err := surface.Push(event); err != nil {
			s.Logger.Error("Failed to push event to surface",
				zap.Error(err),
				zap.String("type", eventType))
		}
	}
}

func (s *TriageSession) sendTo(surface Surface, eventType string, data interface{}) {
	event := models.SurfaceEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err := surface.Push(event); err != nil {
		s.Logger.Error("Failed to push event to surface",
			zap.Error(err),
			zap.String("type", eventType))
	}
}

func (s *TriageSession) UpdateActivity() {
	s.stateMu.Lock()
	s.LastActivity = time.Now()
	s.stateMu.Unlock()
}

func (s *TriageSession) Stop() {
	s.stateMu.Lock()
	if !s.IsActive {
		s.stateMu.Unlock()
		return
	}
	s.IsActive = false
	s.stateMu.Unlock()

	s.Logger.Info("Stopping session")

	s.ResultHandler.Close()
	s.ChatHandler.Close()
	s.ChartHandler.Close()

	// Cancel current context; handler goroutines and any in-flight
	// outcome delivery exit through it
	s.CancelCurrentContext()
}

// handleSubmit drives one inference round trip. A second submission while
// one is in flight is refused here, at the trigger; the prior request is
// never cancelled.
func (s *TriageSession) handleSubmit(intake models.PatientIntake) {
	file := s.UploadHandler.Selected()
	if file == nil {
		s.Broadcast("error_banner", map[string]string{"message": EmptySelectionMessage})
		return
	}

	s.stateMu.Lock()
	if s.inferenceInFlight {
		s.stateMu.Unlock()
		s.Logger.Warn("Submission refused, inference already in flight")
		return
	}
	s.inferenceInFlight = true
	s.stateMu.Unlock()

	s.Broadcast("loading", map[string]bool{"active": true})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Config.Backend.PredictTimeout)
		defer cancel()

		outcome := s.predictionClient.Submit(ctx, file, intake)

		select {
		case s.OutcomeCh <- outcome:
		case <-s.CurrentContext.Done():
			s.Logger.Debug("Session stopped before inference outcome was delivered")
		}
	}()
}

func (s *TriageSession) clearInferenceInFlight() {
	s.stateMu.Lock()
	s.inferenceInFlight = false
	s.stateMu.Unlock()
}

// handleClear resets selection, retained result, error surface and gauges
// in one step. Chat history is untouched; it lives for the whole session.
func (s *TriageSession) handleClear() {
	s.UploadHandler.Clear()
	s.ResultHandler.Clear()
	s.ChartHandler.Reset()
	s.Broadcast("cleared", nil)
}

// syncSurface replays current state to a late-attaching surface so a
// duplicate joining mid-session renders the same picture as the primary.
func (s *TriageSession) syncSurface(surface Surface) {
	s.sendTo(surface, "session_info", map[string]string{"session_id": s.ID})

	for _, role := range []models.GaugeRole{models.GaugeConfidence, models.GaugeQuality} {
		state := s.ChartHandler.State(role)
		s.sendTo(surface, "gauge_update", gaugeFrame(role, state))
	}

	if latest := s.ResultHandler.RestoreLatest(); latest != nil {
		s.sendTo(surface, "result", resultPayload(latest))
	}

	for _, turn := range s.ChatHandler.Turns() {
		if turn.Pending {
			s.sendTo(surface, "chat_composing", map[string]string{"id": turn.ID})
			continue
		}
		s.sendTo(surface, "chat_turn", turn)
	}
}

func (s *TriageSession) heartbeatLoop() {
	interval := s.Config.Server.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Logger.Debug("Session heartbeat")
			s.Broadcast("heartbeat", map[string]interface{}{
				"session_id": s.ID,
				"uptime":     time.Since(s.StartTime).String(),
			})
		case <-s.CurrentContext.Done():
			return
		}
	}
}

// surfaceMessage is the envelope for every event a surface sends us.
type surfaceMessage struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

func (s *TriageSession) listenSurfaceMessages(conn *websocket.Conn, surface Surface) {
	for {
		var msg surfaceMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.Logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		s.UpdateActivity()

		switch msg.Type {
		case "select_file":
			s.UploadHandler.SelectFile(
				stringField(msg.Data, "name"),
				stringField(msg.Data, "mime_type"),
				stringField(msg.Data, "data"),
			)
		case "clear":
			s.handleClear()
		case "submit":
			s.handleSubmit(models.PatientIntake{
				PatientName: stringField(msg.Data, "patient_name"),
				PatientAge:  stringField(msg.Data, "patient_age"),
				Notes:       stringField(msg.Data, "notes"),
			})
		case "chat":
			s.ChatHandler.Submit(stringField(msg.Data, "message"))
		case "suggestion":
			s.ChatHandler.Suggestion(stringField(msg.Data, "text"))
		case "export_report":
			s.ReportHandler.Export()
		case "ping":
			s.sendTo(surface, "pong", nil)
		case "stop":
			s.Logger.Info("Received stop command from surface")
			s.sendTo(surface, "stop_confirmation", map[string]interface{}{
				"session_id": s.ID,
				"message":    "Session stopped successfully",
			})
			s.Stop()
			return
		default:
			s.Logger.Warn("Unknown message type", zap.String("type", msg.Type))
		}
	}
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}

// SessionRegistry owns the live sessions and hands surfaces to them.
// Explicit instance, no package-level session state.
type SessionRegistry struct {
	redisClient *redis.Client
	cfg         *config.Config

	mu       sync.Mutex
	sessions map[string]*TriageSession
}

func NewSessionRegistry(cfg *config.Config, redisClient *redis.Client) *SessionRegistry {
	return &SessionRegistry{
		redisClient: redisClient,
		cfg:         cfg,
		sessions:    make(map[string]*TriageSession),
	}
}

// HandleSurface upgrades the connection and binds it to a session. A
// `session` query parameter joins an existing session as an extra surface
// (the mobile duplicate); otherwise a fresh session is created.
func (r *SessionRegistry) HandleSurface(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade to websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	session, created := r.findOrCreate(req.URL.Query().Get("session"))
	if created {
		session.Logger.Info("New triage session started")
		go session.heartbeatLoop()
	}

	surface := &websocketSurface{conn: conn}
	session.AttachSurface(surface)
	session.syncSurface(surface)

	session.listenSurfaceMessages(conn, surface)

	remaining := session.DetachSurface(surface)
	if remaining == 0 {
		session.Logger.Info("Last surface gone, ending triage session")
		session.Stop()
		r.remove(session.ID)
	}
}

func (r *SessionRegistry) findOrCreate(requestedID string) (*TriageSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestedID != "" {
		if session, ok := r.sessions[requestedID]; ok {
			return session, false
		}
	}

	id := uuid.New().String()
	session := NewTriageSession(id, r.redisClient, r.cfg)
	r.sessions[id] = session
	return session, true
}

func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// websocketSurface adapts a browser connection to the Surface interface.
// gorilla/websocket allows one concurrent writer, hence the mutex.
type websocketSurface struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *websocketSurface) Push(event models.SurfaceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}
