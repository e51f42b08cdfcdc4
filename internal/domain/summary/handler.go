package summary

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/clinsum/internal/domain/episode"
	"github.com/ehr/clinsum/internal/domain/record"
	"github.com/ehr/clinsum/internal/platform/auth"
	"github.com/ehr/clinsum/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "physician", "nurse")

	read := api.Group("", role, auth.RequireScope("patients", "read"))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id/episodes", h.ListEpisodes)
	read.GET("/patients/:id/context", h.GetContext)

	write := api.Group("", role, auth.RequireScope("summaries", "write"))
	write.POST("/summaries", h.CreateSummary)
}

// RegisterLegacyRoutes mounts the original unversioned summary endpoint.
func (h *Handler) RegisterLegacyRoutes(e *echo.Group) {
	e.POST("/generate_summary", h.CreateSummary,
		auth.RequireRole("admin", "physician", "nurse"), auth.RequireScope("summaries", "write"))
}

type summaryRequest struct {
	PatientID *int64 `json:"patient_id"`
	UseLLM    *bool  `json:"use_llm"`
	Model     string `json:"model"`
}

func (h *Handler) CreateSummary(c echo.Context) error {
	var body summaryRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.PatientID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	req := Request{PatientID: *body.PatientID, UseGenerative: true, ModelName: body.Model}
	if body.UseLLM != nil {
		req.UseGenerative = *body.UseLLM
	}

	resp, err := h.svc.Summarize(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	ids := h.svc.PatientIDs()
	start, end := pg.Bounds(len(ids))
	return c.JSON(http.StatusOK, pagination.NewResponse(ids[start:end], len(ids), pg.Limit, pg.Offset))
}

func (h *Handler) ListEpisodes(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	spans, err := h.svc.Episodes(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, spans)
}

func (h *Handler) GetContext(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	var sc *Context
	if raw := c.QueryParam("episode_id"); raw != "" {
		eid, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid episode_id")
		}
		sc, err = h.svc.EpisodeContext(ctx, id, eid)
	} else {
		sc, err = h.svc.Context(ctx, id)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sc)
}

func patientParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, episode.ErrPatientNotFound),
		errors.Is(err, episode.ErrNoEpisodeFound),
		errors.Is(err, episode.ErrEpisodeNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, record.ErrMalformedRecord):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
