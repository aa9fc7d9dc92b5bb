package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/seocheck/headchecker/internal/metrics"
	"github.com/seocheck/headchecker/manager"
	"github.com/seocheck/headchecker/pkg/dispatcher"
	"github.com/seocheck/headchecker/pkg/timer"
	"github.com/seocheck/headchecker/sitemap"

	"github.com/fasthttp/router"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// APIServer ties the HTTP API together and allows to start/shutdown the web server.
type APIServer struct {
	*Configuration
	httpServer *fasthttp.Server
}

type Configuration struct {
	debug       bool
	addr        string
	taskManager *manager.Manager
}

func Configure() *Configuration {
	return &Configuration{
		addr: ":8080",
	}
}

func (c *Configuration) Debug(debug bool) *Configuration {
	c.debug = debug
	return c
}

func (c *Configuration) Addr(addr string) *Configuration {
	c.addr = addr
	return c
}

func (c *Configuration) Manager(m *manager.Manager) *Configuration {
	c.taskManager = m
	return c
}

type submitRequest struct {
	SitemapURL string `json:"sitemap_url"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *APIServer) handleSubmit(ctx *fasthttp.RequestCtx) {
	var req submitRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeJSON(ctx, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	taskID, err := s.taskManager.Submit(ctx, req.SitemapURL)
	if errors.Is(err, sitemap.ErrInvalidURL) {
		logger.Infow("rejected submission", "url", req.SitemapURL)
		writeJSON(ctx, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	} else if errors.Is(err, dispatcher.ErrQueueFull) {
		writeJSON(ctx, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	} else if err != nil {
		logger.Errorw("submission failed", "err", err)
		writeJSON(ctx, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(ctx, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (s *APIServer) handleStatus(ctx *fasthttp.RequestCtx) {
	taskID := ctx.UserValue("id").(string)

	st, err := s.taskManager.Status(ctx, taskID)
	if errors.Is(err, manager.ErrTaskNotFound) {
		writeJSON(ctx, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	} else if err != nil {
		logger.Errorw("status query failed", "task_id", taskID, "err", err)
		writeJSON(ctx, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(ctx, http.StatusOK, st)
}

func (s *APIServer) handleDownload(ctx *fasthttp.RequestCtx) {
	taskID := ctx.UserValue("id").(string)

	art, err := s.taskManager.Download(ctx, taskID)
	switch {
	case errors.Is(err, manager.ErrTaskNotFound), errors.Is(err, manager.ErrArtifactMissing):
		writeJSON(ctx, http.StatusNotFound, errorResponse{Error: manager.ErrTaskNotFound.Error()})
		return
	case errors.Is(err, manager.ErrTaskNotReady):
		writeJSON(ctx, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		logger.Errorw("download failed", "task_id", taskID, "err", err)
		writeJSON(ctx, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	ctx.SetContentType("application/octet-stream")
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%v"`, path.Base(art.Name)))
	// fasthttp closes the stream for us once the response is written
	ctx.Response.SetBodyStream(art, int(art.Size))
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body interface{}) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}
	ctx.SetBody(b)
}

func handlePanic(ctx *fasthttp.RequestCtx, p interface{}) {
	ctx.SetStatusCode(http.StatusInternalServerError)
	logger.Errorw("panicked", "url", ctx.Request.URI(), "panic", p)
}

func corsMiddleware(h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		h(ctx)
	}
}

func metricsMiddleware(h fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		t := timer.Start()
		h(ctx)
		metrics.HTTPAPIRequests.WithLabelValues(fmt.Sprintf("%v", ctx.Response.StatusCode())).Observe(t.Duration())
	}
}

func NewServer(cfg *Configuration) *APIServer {
	r := router.New()

	s := &APIServer{
		Configuration: cfg,
		httpServer: &fasthttp.Server{
			Handler: metricsMiddleware(corsMiddleware(r.Handler)),
		},
	}

	r.POST("/api/v1/tasks", s.handleSubmit)
	r.GET("/api/v1/tasks/{id}", s.handleStatus)
	r.GET("/api/v1/tasks/{id}/download", s.handleDownload)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	if !s.debug {
		r.PanicHandler = handlePanic
	}
	return s
}

func (s APIServer) Addr() string {
	return s.addr
}

func (s APIServer) URL() string {
	return "http://" + s.addr
}

func (s APIServer) Start() error {
	logger.Infow("listening", "bind", s.addr, "debug", s.debug)
	return s.httpServer.ListenAndServe(s.addr)
}

func (s APIServer) Shutdown() error {
	logger.Info("shutting down...")
	return s.httpServer.Shutdown()
}
