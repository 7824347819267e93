package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/vedasoham/dtdp/internal/api/handlers"
	"github.com/vedasoham/dtdp/internal/api/response"
)

// RouterConfig carries what SetupRouter wires into the handlers.
type RouterConfig struct {
	Session handlers.Session
	Version string
}

// SetupRouter installs middleware, /health and the huma operations under /api/v1.
func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	handlers.InitErrors()
	e.HTTPErrorHandler = response.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	}))

	e.GET("/health", func(c echo.Context) error {
		return response.Success(c, http.StatusOK, map[string]string{
			"status":  "ok",
			"project": cfg.Session.Project(),
		})
	})

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	v1 := e.Group("/api/v1")
	config := huma.DefaultConfig("dtdp API", version)
	config.Servers = []*huma.Server{{URL: "/api/v1"}}
	config.Info.Description = "Reconciled status and control of the sequence filtering pipeline"

	api := humaecho.NewWithGroup(e, v1, config)

	h := handlers.NewPipelineHandler(cfg.Session)
	huma.Register(api, huma.Operation{
		OperationID: "stages-list",
		Method:      http.MethodGet,
		Path:        "/stages",
		Summary:     "Reconciled status of every stage",
		Tags:        []string{"Pipeline"},
	}, h.Stages)

	huma.Register(api, huma.Operation{
		OperationID: "stage-start",
		Method:      http.MethodPost,
		Path:        "/stages/{stage}/start",
		Summary:     "Start a single stage",
		Tags:        []string{"Pipeline"},
	}, h.StartStage)

	huma.Register(api, huma.Operation{
		OperationID: "control-get",
		Method:      http.MethodGet,
		Path:        "/control",
		Summary:     "State of the Run All control",
		Tags:        []string{"Pipeline"},
	}, h.Control)

	huma.Register(api, huma.Operation{
		OperationID: "control-run",
		Method:      http.MethodPost,
		Path:        "/control/run",
		Summary:     "Run or resume the full pipeline",
		Tags:        []string{"Pipeline"},
	}, h.Run)

	huma.Register(api, huma.Operation{
		OperationID: "project-set",
		Method:      http.MethodPut,
		Path:        "/project",
		Summary:     "Switch the active project",
		Tags:        []string{"Session"},
	}, h.SetProject)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-list",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "Cached jobs of the active project",
		Tags:        []string{"Jobs"},
	}, h.Jobs)

	huma.Register(api, huma.Operation{
		OperationID: "job-wait",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/wait",
		Summary:     "Block until a job finishes",
		Tags:        []string{"Jobs"},
	}, h.Wait)
}
