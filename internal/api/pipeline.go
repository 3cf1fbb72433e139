// Package api wires the translator, command interpreter, dispatcher and
// response assembler together behind gin HTTP handlers, with streaming and
// non-streaming responses handled by a shared pipeline per route.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/llmproxy-dev/llmproxy/internal/accounting"
	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/assembler"
	"github.com/llmproxy-dev/llmproxy/internal/command"
	"github.com/llmproxy-dev/llmproxy/internal/loopdetect"
	"github.com/llmproxy-dev/llmproxy/internal/middleware"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

// pipeline runs one inbound request of the given dialect through the full
// command/dispatch/assemble chain and writes the dialect-shaped response
// (unary JSON or SSE) to c.
func (s *Server) pipeline(c *gin.Context, dialect translator.Dialect, streamOverride *bool) {
	raw, err := c.GetRawData()
	if err != nil {
		s.writeError(c, dialect, apierr.InvalidRequest("failed to read request body: %v", err))
		return
	}

	req, tErr := translator.ToCanonicalRequest(dialect, raw)
	if tErr != nil {
		s.writeError(c, dialect, apierr.InvalidRequest("%v", tErr))
		return
	}
	if streamOverride != nil {
		req.Stream = *streamOverride
	}
	if dialect == translator.Gemini {
		if model, ok := c.Get(geminiModelContextKey); ok {
			req.Model = model.(string)
		}
	}

	sessionID := resolveSessionID(c)
	req.SessionID = sessionID
	sess := s.sessions.GetOrCreate(sessionID)
	snap := sess.Snapshot()

	outcome := s.interpreter.Process(req, snap, s.catalog)
	s.sessions.Update(sessionID, func(*session.Snapshot) *session.Snapshot { return outcome.Snapshot })
	req = outcome.Request

	backends := s.backendStatuses()

	if outcome.HaltDispatch {
		bannerDue := assembler.ShouldBanner(outcome.Snapshot)
		text := assembler.CommandOnlyMessage(outcome.Snapshot, sessionID, s.commandPrefix(outcome.Snapshot), backends, outcome.Confirmations)
		if bannerDue {
			s.sessions.Update(sessionID, func(snap *session.Snapshot) *session.Snapshot {
				return snap.With(func(s *session.Snapshot) {
					s.HelloRequested = false
					s.InteractiveJustEnabled = false
				})
			})
		}
		resp := assembler.ProxyCommandResponse(text, req.Model)
		s.respondUnaryOrSingleChunk(c, dialect, req, resp)
		return
	}

	body := ""
	if len(outcome.Confirmations) > 0 {
		body = assembler.JoinConfirmations(outcome.Confirmations)
	}
	if assembler.ShouldBanner(outcome.Snapshot) {
		banner := assembler.Banner(sessionID, s.commandPrefix(outcome.Snapshot), backends)
		if body != "" {
			banner += "\n" + body
		}
		body = banner
		outcome.Snapshot = s.sessions.Update(sessionID, func(snap *session.Snapshot) *session.Snapshot {
			return snap.With(func(s *session.Snapshot) {
				s.HelloRequested = false
				s.InteractiveJustEnabled = false
			})
		})
	}
	prefix := ""
	if body != "" {
		prefix = assembler.Envelope(body, outcome.Snapshot)
	}

	for i := range req.Messages {
		if req.Messages[i].Role != session.RoleUser {
			continue
		}
		stripCommandLeakFromMessage(&req.Messages[i], s.commandPrefix(outcome.Snapshot))
	}

	if req.Stream {
		s.dispatchStreaming(c, dialect, req, outcome.Snapshot, prefix)
		return
	}
	s.dispatchUnary(c, dialect, req, outcome.Snapshot, prefix)
}

// stripCommandLeakFromMessage runs the command-leak filter over a message's
// text content only, leaving image_url/inline_data parts untouched so
// multimodal content is never dropped on its way to the dispatcher.
func stripCommandLeakFromMessage(m *session.Message, prefix string) {
	if !m.HasParts() {
		m.Text = middleware.StripCommandLeak(m.Text, prefix)
		return
	}
	for i := range m.Parts {
		if m.Parts[i].Kind != session.PartText {
			continue
		}
		m.Parts[i].Text = middleware.StripCommandLeak(m.Parts[i].Text, prefix)
	}
}

func (s *Server) commandPrefix(snap *session.Snapshot) string {
	if s.cfg.CommandPrefix != "" {
		return s.cfg.CommandPrefix
	}
	return command.DefaultPrefix
}

func (s *Server) backendStatuses() []assembler.BackendStatus {
	var out []assembler.BackendStatus
	for _, b := range s.catalog.Backends() {
		keys := 0
		if s.keySource != nil {
			keys = len(s.keySource.Keys(b))
		}
		out = append(out, assembler.BackendStatus{Name: b, Keys: keys, Models: s.catalog.ModelCount(b)})
	}
	return out
}

func (s *Server) respondUnaryOrSingleChunk(c *gin.Context, dialect translator.Dialect, req *session.Request, resp *session.Response) {
	if req.Stream {
		writeSSEHeaders(c.Writer)
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			s.writeError(c, dialect, apierr.Terminal(500, "streaming not supported by this response writer"))
			return
		}
		c.Status(http.StatusOK)
		raw, err := translator.FromCanonicalStreamChunk(dialect, resp)
		if err == nil {
			writeSSEFrame(c.Writer, flusher, raw)
		}
		writeSSEDone(c.Writer, flusher)
		return
	}
	raw, err := translator.FromCanonicalResponse(dialect, resp)
	if err != nil {
		s.writeError(c, dialect, apierr.Terminal(500, fmt.Sprintf("failed to encode response: %v", err)))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) dispatchUnary(c *gin.Context, dialect translator.Dialect, req *session.Request, snap *session.Snapshot, prefix string) {
	resp, _, apiErr := s.dispatcher.Dispatch(c.Request.Context(), req, snap)
	if apiErr != nil {
		s.writeError(c, dialect, apiErr)
		return
	}
	assembler.PrependToResponse(resp, prefix)
	s.recordUsage(req, resp)

	raw, err := translator.FromCanonicalResponse(dialect, resp)
	if err != nil {
		s.writeError(c, dialect, apierr.Terminal(500, fmt.Sprintf("failed to encode response: %v", err)))
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) dispatchStreaming(c *gin.Context, dialect translator.Dialect, req *session.Request, snap *session.Snapshot, prefix string) {
	writeSSEHeaders(c.Writer)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		s.writeError(c, dialect, apierr.Terminal(500, "streaming not supported by this response writer"))
		return
	}

	stream, _, apiErr := s.dispatcher.DispatchStream(c.Request.Context(), req, snap)
	if apiErr != nil {
		c.Status(apiErr.HTTPStatus())
		raw, _ := translator.FromCanonicalResponse(dialect, errorResponse(apiErr))
		writeSSEFrame(c.Writer, flusher, raw)
		writeSSEDone(c.Writer, flusher)
		return
	}

	c.Status(http.StatusOK)
	detector := loopdetect.New(loopdetect.Config{
		Enabled:          snap.LoopDetection.Enabled,
		MinPatternLength: snap.LoopDetection.MinPatternLength,
		MaxPatternLength: snap.LoopDetection.MaxPatternLength,
		MinRepetitions:   snap.LoopDetection.MinRepetitions,
	})

	first := true
	var lastResp *session.Response
	for chunk := range stream {
		select {
		case <-c.Request.Context().Done():
			return
		default:
		}
		if chunk.Err != nil {
			raw, _ := translator.FromCanonicalResponse(dialect, errorResponse(chunk.Err))
			writeSSEFrame(c.Writer, flusher, raw)
			break
		}
		if chunk.Response == nil {
			continue
		}
		resp := chunk.Response
		if first && prefix != "" {
			assembler.PrependToChunk(resp, prefix)
			first = false
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta != nil {
			filtered := detector.Feed([]byte(resp.Choices[0].Delta.Text))
			resp.Choices[0].Delta.Text = string(filtered)
		}
		lastResp = resp
		raw, err := translator.FromCanonicalStreamChunk(dialect, resp)
		if err != nil {
			log.Errorf("api: failed to encode stream chunk: %v", err)
			continue
		}
		writeSSEFrame(c.Writer, flusher, raw)
		if detector.Fired() {
			break
		}
	}
	if lastResp != nil {
		s.recordUsage(req, lastResp)
	}
	writeSSEDone(c.Writer, flusher)
}

func errorResponse(apiErr *apierr.Error) *session.Response {
	return &session.Response{
		Object: "error",
		Choices: []session.Choice{
			{Message: &session.Message{Role: session.RoleAssistant, Text: apiErr.Error()}, FinishReason: "error"},
		},
	}
}

func (s *Server) recordUsage(req *session.Request, resp *session.Response) {
	if s.accountingSink == nil || resp.Usage == nil {
		return
	}
	s.accountingSink.Record(accounting.Record{
		SessionID:        req.SessionID,
		Backend:          s.cfg.DefaultBackend,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Timestamp:        time.Now(),
	})
}

func (s *Server) writeError(c *gin.Context, dialect translator.Dialect, apiErr *apierr.Error) {
	status := apiErr.HTTPStatus()
	switch dialect {
	case translator.Anthropic:
		c.JSON(status, gin.H{"type": "error", "error": gin.H{"type": string(apiErr.Kind), "message": apiErr.Message}})
	case translator.Gemini:
		c.JSON(status, gin.H{"error": gin.H{"code": status, "message": apiErr.Message, "status": string(apiErr.Kind)}})
	default:
		c.JSON(status, gin.H{"error": gin.H{"message": apiErr.Message, "type": string(apiErr.Kind)}})
	}
}
