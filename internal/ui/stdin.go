package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/wwwzy/wxorca/internal/assistant"
	"github.com/wwwzy/wxorca/internal/state"
)

// StdinUI 是面向程序调用的行协议：
// 每行输入为 JSON {"message": "...", "session_id": "..."} 或纯文本，
// 每行输出一个 AgentResponse JSON。
type StdinUI struct {
	In  io.Reader
	Out io.Writer
}

type stdinRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	AgentType string `json:"agent_type"`
}

func (u *StdinUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	if u.In == nil || u.Out == nil {
		return fmt.Errorf("stdin ui: In and Out are required")
	}

	scanner := bufio.NewScanner(u.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(u.Out)
	sessionID := opts.SessionID

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req := assistant.Request{AgentType: opts.AgentType, SessionID: sessionID, Message: line}
		if strings.HasPrefix(line, "{") {
			var in stdinRequest
			if err := json.Unmarshal([]byte(line), &in); err == nil {
				req.Message = in.Message
				if in.SessionID != "" {
					req.SessionID = in.SessionID
				}
				if in.AgentType != "" {
					t, err := state.ParseAgentType(in.AgentType)
					if err != nil {
						// 与 chat --agent 一致，未知类型直接拒绝
						log.Warn().Err(err).Str("agent_type", in.AgentType).Msg("rejecting stdin request")
						rejected := assistant.AgentResponse{
							SessionID: req.SessionID,
							AgentType: req.AgentType.OrDefault(),
							Response:  assistant.FallbackResponse,
							Error:     err.Error(),
						}
						if err := enc.Encode(rejected); err != nil {
							return fmt.Errorf("write response: %w", err)
						}
						continue
					}
					req.AgentType = t
				}
			}
		}

		resp := backend.Process(ctx, req)
		if req.SessionID == "" || req.SessionID == sessionID {
			sessionID = resp.SessionID
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
