package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/webui"
)

const DefaultAddress = "127.0.0.1:13434"

type Server struct {
	facade *Facade
	clock  func() time.Time
}

func NewServer(facade *Facade) *Server {
	return &Server{
		facade: facade,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.POST("/llm_infer", s.handleInfer)
	e.GET("/healthz", s.handleHealth)

	// OpenAI-compatible
	e.POST("/v1/completions", s.handleCompletions)
	e.GET("/v1/models", s.handleListModels)
}

func (s *Server) handleIndex(c *echo.Context) error {
	return c.HTMLBlob(http.StatusOK, webui.Index())
}

// handleInfer answers {"reply": ...} or a 500 with {"message": ...}.
func (s *Server) handleInfer(c *echo.Context) error {
	req, err := decodeJSON[InferRequest](c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, MessageResponse{Message: FlattenError(err)})
	}
	reply, err := s.facade.Infer(c.Request().Context(), req.Prompt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, MessageResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, InferResponse{Reply: reply})
}

func (s *Server) handleHealth(c *echo.Context) error {
	paths := s.facade.Paths()
	resp := HealthResponse{
		Status: "ok",
		LLM:    paths.LLM != "",
		TTS:    paths.TTS != "",
	}
	if !resp.LLM {
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListModels(c *echo.Context) error {
	var ids []string
	if name := s.facade.ModelName(); name != "" {
		ids = append(ids, name)
	}
	loaded, err := s.facade.service.ListModels()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	for _, p := range loaded {
		if name := filepath.Base(p); !slices.Contains(ids, name) {
			ids = append(ids, name)
		}
	}

	created := s.clock().Unix()
	data := make([]ModelObject, 0, len(ids))
	for _, id := range ids {
		data = append(data, ModelObject{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "local",
		})
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: data})
}

func (s *Server) handleCompletions(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	cfg := req.config()
	if err := cfg.Validate(); err != nil {
		return writeInferenceError(c, err)
	}

	id := newCompletionID()
	created := s.clock().Unix()
	model := s.facade.ModelName()
	if model == "" {
		model = req.Model
	}

	if req.Stream {
		return s.streamCompletion(c, req, cfg, id, created, model)
	}

	res, err := s.facade.Generate(c.Request().Context(), cfg, req.Prompt, nil)
	if err != nil {
		return writeInferenceError(c, err)
	}
	seed := res.Seed
	return c.JSON(http.StatusOK, CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []CompletionChoice{{
			Text:         res.Content,
			Reasoning:    res.Reasoning,
			FinishReason: strPtr(string(res.FinishReason)),
			Seed:         &seed,
		}},
		Usage: usageOf(res),
	})
}

func (s *Server) streamCompletion(c *echo.Context, req CompletionRequest, cfg inference.GenerationConfig, id string, created int64, model string) error {
	// Resource errors are known before any event is written.
	if s.facade.Paths().LLM == "" {
		return writeInferenceError(c, &inference.Error{
			Kind: inference.ErrUninitializedResource,
			Op:   "infer",
			Err:  errors.New("LLM model path not resolved"),
		})
	}
	sw, err := NewSSEStreamWriter(c, id, created, model)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	c.Response().WriteHeader(http.StatusOK)

	res, err := s.facade.Generate(c.Request().Context(), cfg, req.Prompt, sw.EmitDelta)
	if err != nil {
		return sw.Failed(err)
	}
	return sw.Complete(res)
}
