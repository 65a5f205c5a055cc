package p2p

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/peerbattler/battle"
	"github.com/RedPaladin7/peerbattler/replay"
)

type apiFunc func(w http.ResponseWriter, r *http.Request) error

func makeHTTPHandlerFunc(f apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			JSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		}
	}
}

func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// APIServer is the local control surface: the UI drives the session and the
// replay through it and polls it for state.
type APIServer struct {
	listenAddr string
	coord      *Coordinator
	// current returns the replay controller for the battle being shown, or
	// nil outside a battle. Swapped by the owner every round.
	current func() *replay.Controller
}

func NewAPIServer(listenAddr string, coord *Coordinator, current func() *replay.Controller) *APIServer {
	return &APIServer{
		listenAddr: listenAddr,
		coord:      coord,
		current:    current,
	}
}

func (s *APIServer) Run() {
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/api/health", makeHTTPHandlerFunc(s.handleHealth)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/session", makeHTTPHandlerFunc(s.handleGetSession)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/host", makeHTTPHandlerFunc(s.handleHost)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/join", makeHTTPHandlerFunc(s.handleJoin)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/start", makeHTTPHandlerFunc(s.handleStart)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/ready", makeHTTPHandlerFunc(s.handleReady)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/replay", makeHTTPHandlerFunc(s.handleGetReplay)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/replay/play", makeHTTPHandlerFunc(s.handleReplayPlay)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/replay/pause", makeHTTPHandlerFunc(s.handleReplayPause)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/replay/step-forward", makeHTTPHandlerFunc(s.handleReplayStepForward)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/replay/step-back", makeHTTPHandlerFunc(s.handleReplayStepBack)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/replay/skip", makeHTTPHandlerFunc(s.handleReplaySkip)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/replay/speed", makeHTTPHandlerFunc(s.handleReplaySpeed)).Methods("POST", "OPTIONS")

	logrus.WithFields(logrus.Fields{
		"addr": s.listenAddr,
	}).Info("API server starting...")

	http.ListenAndServe(s.listenAddr, r)
}

type SessionResponse struct {
	State         string       `json:"state"`
	Role          string       `json:"role"`
	LocalID       string       `json:"local_id,omitempty"`
	RemoteID      string       `json:"remote_id,omitempty"`
	Round         int          `json:"round"`
	Lives         int          `json:"lives"`
	SelfReady     bool         `json:"self_ready"`
	OpponentReady bool         `json:"opponent_ready"`
	TimerTicks    int          `json:"timer_ticks"`
	Board         battle.Board `json:"board"`
}

type ReplayResponse struct {
	State       string                  `json:"state"`
	EventIndex  int                     `json:"event_index"`
	EventCount  int                     `json:"event_count"`
	PlayerBoard battle.BoardState       `json:"player_board"`
	EnemyBoard  battle.BoardState       `json:"enemy_board"`
	Markers     map[int][]replay.Marker `json:"markers"`
}

type JoinRequest struct {
	Addr string `json:"addr"`
}

type ReadyRequest struct {
	Board battle.Board `json:"board"`
}

type SpeedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) error {
	return JSON(w, http.StatusOK, map[string]string{
		"status":        "healthy",
		"session_state": s.coord.State().String(),
	})
}

func (s *APIServer) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	resp := SessionResponse{
		State: s.coord.State().String(),
		Role:  RoleNone.String(),
		Round: s.coord.Round(),
		Board: s.coord.CurrentBoard(),
	}
	if sess := s.coord.Session(); sess != nil {
		resp.Role = sess.Role.String()
		resp.LocalID = sess.LocalID
		resp.RemoteID = sess.RemoteID
	}
	if seeds, ok := s.coord.Seeds(); ok {
		resp.Lives = seeds.Lives
	}
	ready := s.coord.Readiness()
	resp.SelfReady = ready.SelfReady
	resp.OpponentReady = ready.OpponentReady
	resp.TimerTicks = ready.TimerTicks
	return JSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleHost(w http.ResponseWriter, r *http.Request) error {
	s.coord.Host()
	return JSON(w, http.StatusOK, map[string]string{"state": s.coord.State().String()})
}

func (s *APIServer) handleJoin(w http.ResponseWriter, r *http.Request) error {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	if req.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if err := s.coord.Join(req.Addr); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"state": s.coord.State().String()})
}

func (s *APIServer) handleStart(w http.ResponseWriter, r *http.Request) error {
	if err := s.coord.BeginSession(); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"state": s.coord.State().String()})
}

func (s *APIServer) handleReady(w http.ResponseWriter, r *http.Request) error {
	var req ReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	if err := s.coord.SubmitReady(req.Board); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"state": s.coord.State().String()})
}

func (s *APIServer) replayController() (*replay.Controller, error) {
	if s.current == nil {
		return nil, fmt.Errorf("no replay available")
	}
	ctrl := s.current()
	if ctrl == nil {
		return nil, fmt.Errorf("no battle to replay")
	}
	return ctrl, nil
}

func (s *APIServer) handleGetReplay(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	player, enemy := ctrl.Boards()
	return JSON(w, http.StatusOK, ReplayResponse{
		State:       ctrl.State().String(),
		EventIndex:  ctrl.Index(),
		EventCount:  ctrl.Len(),
		PlayerBoard: player,
		EnemyBoard:  enemy,
		Markers:     ctrl.Markers(),
	})
}

func (s *APIServer) handleReplayPlay(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	ctrl.Play()
	return JSON(w, http.StatusOK, map[string]string{"state": ctrl.State().String()})
}

func (s *APIServer) handleReplayPause(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	ctrl.Pause()
	return JSON(w, http.StatusOK, map[string]string{"state": ctrl.State().String()})
}

func (s *APIServer) handleReplayStepForward(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	ctrl.StepForward()
	return JSON(w, http.StatusOK, map[string]any{"event_index": ctrl.Index()})
}

func (s *APIServer) handleReplayStepBack(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	ctrl.StepBackward()
	return JSON(w, http.StatusOK, map[string]any{"event_index": ctrl.Index()})
}

func (s *APIServer) handleReplaySkip(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	ctrl.SkipToEnd()
	return JSON(w, http.StatusOK, map[string]any{"event_index": ctrl.Index(), "state": ctrl.State().String()})
}

func (s *APIServer) handleReplaySpeed(w http.ResponseWriter, r *http.Request) error {
	ctrl, err := s.replayController()
	if err != nil {
		return err
	}
	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	if err := ctrl.SetSpeed(req.Multiplier); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]any{"multiplier": req.Multiplier})
}
