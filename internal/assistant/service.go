// Package assistant 把会话存储、智能体图与运行器串成一次完整的对话回合。
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/agent"
	"github.com/wwwzy/wxorca/internal/graph"
	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/storage"
	"github.com/wwwzy/wxorca/internal/tools"
)

// FallbackResponse 在运行没有产出助手消息时返回
const FallbackResponse = "I apologize, but I couldn't generate a response."

type Request struct {
	AgentType state.AgentType `json:"agent_type,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   string          `json:"message"`
}

type AgentResponse struct {
	SessionID string          `json:"session_id"`
	AgentType state.AgentType `json:"agent_type"`
	Response  string          `json:"response"`
	Error     string          `json:"error,omitempty"`
}

// GraphSource 按智能体类型提供编译好的图，*agent.Catalog 实现了它
type GraphSource interface {
	Graph(t state.AgentType) (*graph.Graph, error)
}

var _ GraphSource = (*agent.Catalog)(nil)

type Service struct {
	store  storage.ConversationStore
	graphs GraphSource
	runner *graph.Runner
	locks  sessionLocks
}

func NewService(store storage.ConversationStore, graphs GraphSource, runner *graph.Runner) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if graphs == nil {
		return nil, fmt.Errorf("graph source is required")
	}
	if runner == nil {
		runner = graph.NewRunner(graph.Config{})
	}
	return &Service{store: store, graphs: graphs, runner: runner}, nil
}

// Process 处理一条用户消息。
// 同一会话的请求串行执行；运行失败时仍会保存已产生的状态，错误写入 AgentResponse.Error。
func (s *Service) Process(ctx context.Context, req Request) AgentResponse {
	agentType := req.AgentType.OrDefault()
	resp := AgentResponse{SessionID: req.SessionID, AgentType: agentType}

	if strings.TrimSpace(req.Message) == "" {
		resp.Response = FallbackResponse
		resp.Error = "message is required"
		return resp
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
		resp.SessionID = req.SessionID
	}
	unlock := s.locks.lock(req.SessionID)
	defer unlock()

	st, err := s.loadOrCreate(ctx, req.SessionID, agentType)
	if err != nil {
		resp.Response = FallbackResponse
		resp.Error = err.Error()
		return resp
	}
	// 已有会话沿用自己的智能体类型
	resp.AgentType = st.AgentType

	st.AddUserMessage(req.Message)
	st.ResetContext()

	g, err := s.graphs.Graph(st.AgentType)
	if err != nil {
		resp.Response = FallbackResponse
		resp.Error = err.Error()
		return resp
	}

	traceID := uuid.NewString()
	runCtx := tools.WithSessionID(tools.WithTraceID(ctx, traceID), st.SessionID)
	logger := log.With().Str("session_id", st.SessionID).Str("trace_id", traceID).Str("agent", string(st.AgentType)).Logger()
	logger.Debug().Msg("processing message")

	final, runErr := s.runner.Run(runCtx, g, st)
	if final == nil {
		final = st
	}

	// 失败时同样保存，保留用户消息与部分结果
	if err := s.store.Save(context.WithoutCancel(ctx), final); err != nil {
		logger.Error().Err(err).Msg("save conversation failed")
		if runErr == nil {
			runErr = fmt.Errorf("save conversation failed: %w", err)
		}
	}

	if runErr != nil {
		logger.Warn().Err(runErr).Msg("agent run failed")
		resp.Response = FallbackResponse
		resp.Error = runErr.Error()
		return resp
	}

	resp.Response = FallbackResponse
	if msg := final.LastAssistantMessage(); msg != nil && msg.Content != "" {
		resp.Response = msg.Content
	}
	return resp
}

func (s *Service) loadOrCreate(ctx context.Context, sessionID string, agentType state.AgentType) (*state.ConversationState, error) {
	st, err := s.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, storage.ErrNotFound):
		st = state.NewConversationStateWithSession(sessionID, agentType)
		st.AddSystemMessage(agentType.SystemPrompt())
		return st, nil
	default:
		return nil, fmt.Errorf("load conversation %s failed: %w", sessionID, err)
	}
}

// sessionLocks 为每个会话提供一把互斥锁，用完即回收
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[key]
	if !ok {
		sl = &sessionLock{}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
