// Package feed 通过 HTTP 和 websocket 暴露游戏会话。
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderup-go/event"
	"orderup-go/game"
	"orderup-go/internal/engine"
	"orderup-go/internal/store"
	"orderup-go/order"
)

// Commander 是 feed 依赖的引擎能力，*engine.Engine 即实现。
type Commander interface {
	StartRound(ctx context.Context) error
	PauseRound(ctx context.Context) (bool, error)
	ResumeRound(ctx context.Context) (bool, error)
	EndRound(ctx context.Context) error
	CompleteOrder(ctx context.Context, req game.CompleteRequest) (order.Completion, error)
	ExpireOrder(ctx context.Context, ref order.Ref) error
	Snapshot(ctx context.Context) (game.Snapshot, error)
}

// Recorder 记录接入层指标，*monitor.Monitor 即实现。
type Recorder interface {
	RecordHTTPRequest(route, code string)
	RecordWSConnection()
	RecordWSDisconnect()
	RecordWSDropped()
}

// History 回合历史，*store.Store 即实现。
type History interface {
	Recent(n int) []store.RoundRecord
	Best() (store.RoundRecord, bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPRequest(string, string) {}

func (nopRecorder) RecordWSConnection() {}

func (nopRecorder) RecordWSDisconnect() {}

func (nopRecorder) RecordWSDropped() {}

// Config 接入层配置
type Config struct {
	AuthToken    string        // 为空时不校验
	CORSOrigin   string        // 缺省 "*"
	ClientBuffer int           // 每个 websocket 客户端的缓冲条数
	WriteTimeout time.Duration // 单条 websocket 写超时
}

// Server HTTP/websocket 接入层
type Server struct {
	cfg      Config
	engine   Commander
	metrics  Recorder
	logger   *zap.Logger
	upgrader websocket.Upgrader
	events   *broadcaster[outboundMessage]
	history  History

	mu  sync.Mutex
	hub *event.Hub
	tap event.Subscription
}

type completeRequest struct {
	InstanceID        uint64   `json:"instanceId"`
	DefinitionID      string   `json:"definitionId"`
	Validated         bool     `json:"validated"`
	Points            int      `json:"points"`
	CompletionSeconds *float64 `json:"completionSeconds"`
}

type expireRequest struct {
	InstanceID   uint64 `json:"instanceId"`
	DefinitionID string `json:"definitionId"`
}

// maxCompletionSeconds 超过它的秒数换算成 time.Duration 会溢出
const maxCompletionSeconds = float64(math.MaxInt64) / float64(time.Second)

type completeResponse struct {
	Status     string         `json:"status"`
	Completion completionView `json:"completion"`
}

type roundResponse struct {
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
}

// New 创建接入层；metrics 与 logger 可为 nil。
func New(cfg Config, eng Commander, metrics Recorder, logger *zap.Logger) *Server {
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		engine:   eng,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		events:   newBroadcaster[outboundMessage](metrics.RecordWSDropped),
	}
}

// SetHistory 启用 GET /rounds
func (s *Server) SetHistory(h History) {
	s.history = h
}

// Attach 把 hub 上的全部事件转发给 websocket 客户端。
// hub 不加锁，必须在引擎启动前调用，或通过 engine.Do 在事件循环内调用。
func (s *Server) Attach(hub *event.Hub) {
	s.Detach()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = hub
	s.tap = hub.Tap(func(env event.Envelope) {
		s.events.Broadcast(toMessage(env))
	})
}

// Detach 解除事件转发
func (s *Server) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hub != nil {
		s.hub.Untap(s.tap)
	}
	s.hub = nil
	s.tap = event.Subscription{}
}

// Close 断开所有 websocket 客户端
func (s *Server) Close() {
	s.events.Close()
}

// Clients 当前 websocket 客户端数
func (s *Server) Clients() int {
	return s.events.Len()
}

// Routes 返回挂好中间件的路由
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /state", s.withAuth(http.HandlerFunc(s.handleState)))
	mux.Handle("POST /round/{action}", s.withAuth(http.HandlerFunc(s.handleRound)))
	mux.Handle("POST /orders/complete", s.withAuth(http.HandlerFunc(s.handleComplete)))
	mux.Handle("POST /orders/expire", s.withAuth(http.HandlerFunc(s.handleExpire)))
	mux.Handle("GET /rounds", s.withAuth(http.HandlerFunc(s.handleRounds)))
	mux.Handle("GET /rounds/best", s.withAuth(http.HandlerFunc(s.handleBestRound)))
	mux.Handle("GET /ws/events", s.withAuth(http.HandlerFunc(s.handleEventStream)))
	return s.withCORS(mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			s.writeError(w, r.URL.Path, http.StatusUnauthorized, errors.New("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "/healthz", http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, "/state", statusFor(err), err)
		return
	}
	s.writeJSON(w, "/state", http.StatusOK, snap)
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	const route = "/rounds"
	if s.history == nil {
		s.writeError(w, route, http.StatusNotFound, errors.New("round history disabled"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, route, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	records := s.history.Recent(limit)
	out := make([]roundRecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, toRoundRecordView(rec))
	}
	s.writeJSON(w, route, http.StatusOK, out)
}

func (s *Server) handleBestRound(w http.ResponseWriter, r *http.Request) {
	const route = "/rounds/best"
	if s.history == nil {
		s.writeError(w, route, http.StatusNotFound, errors.New("round history disabled"))
		return
	}
	rec, ok := s.history.Best()
	if !ok {
		s.writeError(w, route, http.StatusNotFound, errors.New("no rounds recorded"))
		return
	}
	s.writeJSON(w, route, http.StatusOK, toRoundRecordView(rec))
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	route := "/round/" + action
	ctx := r.Context()

	var (
		applied = true
		err     error
	)
	switch action {
	case "start":
		err = s.engine.StartRound(ctx)
	case "pause":
		applied, err = s.engine.PauseRound(ctx)
	case "resume":
		applied, err = s.engine.ResumeRound(ctx)
	case "end":
		err = s.engine.EndRound(ctx)
	default:
		s.writeError(w, "/round/unknown", http.StatusNotFound, fmt.Errorf("unknown round action %q", action))
		return
	}
	if err != nil {
		s.writeError(w, route, statusFor(err), err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, roundResponse{Action: action, Applied: applied})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	const route = "/orders/complete"

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, route, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	creq, err := buildCompleteRequest(req)
	if err != nil {
		s.writeError(w, route, http.StatusBadRequest, err)
		return
	}

	c, err := s.engine.CompleteOrder(r.Context(), creq)
	if err != nil {
		s.writeError(w, route, statusFor(err), err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, completeResponse{Status: "completed", Completion: toCompletionView(c)})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	const route = "/orders/expire"

	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, route, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	ref, err := parseRef(req.InstanceID, req.DefinitionID)
	if err != nil {
		s.writeError(w, route, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.ExpireOrder(r.Context(), ref); err != nil {
		s.writeError(w, route, statusFor(err), err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, map[string]string{"status": "expired", "ref": ref.String()})
}

// parseRef 实例号与定义 ID 二选一
func parseRef(instanceID uint64, definitionID string) (order.Ref, error) {
	switch {
	case instanceID != 0 && definitionID != "":
		return order.Ref{}, errors.New("instanceId and definitionId are mutually exclusive")
	case instanceID != 0:
		return order.ByInstance(instanceID), nil
	case definitionID != "":
		return order.ByDefinition(definitionID), nil
	default:
		return order.Ref{}, errors.New("instanceId or definitionId is required")
	}
}

func buildCompleteRequest(req completeRequest) (game.CompleteRequest, error) {
	ref, err := parseRef(req.InstanceID, req.DefinitionID)
	if err != nil {
		return game.CompleteRequest{}, err
	}

	out := game.CompleteRequest{Ref: ref, Validated: req.Validated, Points: req.Points}
	if req.CompletionSeconds != nil {
		if *req.CompletionSeconds < 0 {
			return game.CompleteRequest{}, errors.New("completionSeconds must be >= 0")
		}
		if *req.CompletionSeconds >= maxCompletionSeconds {
			return game.CompleteRequest{}, fmt.Errorf("completionSeconds must be < %.0f", maxCompletionSeconds)
		}
		d := time.Duration(*req.CompletionSeconds * float64(time.Second))
		out.CompletionTime = &d
	}
	return out, nil
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	const route = "/ws/events"
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.RecordHTTPRequest(route, strconv.Itoa(http.StatusBadRequest))
		return
	}
	defer conn.Close()
	s.metrics.RecordHTTPRequest(route, strconv.Itoa(http.StatusSwitchingProtocols))

	sub := s.events.Subscribe(s.cfg.ClientBuffer)
	if sub == nil {
		return
	}
	defer s.events.Unsubscribe(sub)
	s.metrics.RecordWSConnection()
	defer s.metrics.RecordWSDisconnect()

	// 只读不处理；读失败说明客户端已断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// statusFor 把领域错误映射到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotValidated):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrOrderNotActive):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, route string, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("route", route), zap.Error(err))
	}
	s.writeJSON(w, route, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, code int, payload interface{}) {
	s.metrics.RecordHTTPRequest(route, strconv.Itoa(code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
