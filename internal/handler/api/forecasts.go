package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast"
	"CoinCast/internal/usecase"
	xhttp "CoinCast/pkg/http"
	xlogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler exposes training, forecast and job endpoints.
type ForecastEchoHandler struct {
	logger *xlogger.Logger
	svc    *usecase.ForecastService
	prices repository.PriceStore
}

func NewForecastEchoHandler(logger *xlogger.Logger, svc *usecase.ForecastService, prices repository.PriceStore) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, svc: svc, prices: prices}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/models/train", h.Train)
	g.GET("/models/:id", h.ModelRun)
	g.GET("/jobs/:key", h.JobStatus)
	g.GET("/forecasts/:cryptoID", h.Forecasts)
	g.GET("/forecasts/:cryptoID/meta", h.ForecastMeta)
	g.POST("/forecasts/:cryptoID/recompute", h.Recompute)
}

func (h *ForecastEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job := h.svc.StartTrainingJob(*req)
	h.logger.Info("training job requested",
		xlogger.String("family", req.ModelFamily),
		xlogger.String("cell", req.CellType),
		xlogger.String("state", string(job.State)))
	return xhttp.SuccessResponse(c, models.JobResponseFrom(job))
}

func (h *ForecastEchoHandler) ModelRun(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("id must be an integer"))
	}

	run, err := h.svc.RunByID(c.Request().Context(), id)
	if errors.Is(err, forecast.ErrModelRunNotFound) {
		return xhttp.NotFoundResponse(c, "model run not found")
	}
	if err != nil {
		h.logger.Error("model run lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("model run lookup failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *ForecastEchoHandler) JobStatus(c echo.Context) error {
	job := h.svc.JobStatus(c.Param("key"))
	return xhttp.SuccessResponse(c, models.JobResponseFrom(job))
}

func (h *ForecastEchoHandler) Forecasts(c echo.Context) error {
	cryptoID, err := strconv.Atoi(c.Param("cryptoID"))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cryptoID must be an integer"))
	}
	q := &models.ForecastQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.svc.Forecasts(c.Request().Context(), models.ModelKind(q.Model), cryptoID, q.Days)
	if err != nil {
		h.logger.Error("forecast read error",
			xlogger.Int("crypto_id", cryptoID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("forecast read failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ForecastEchoHandler) ForecastMeta(c echo.Context) error {
	cryptoID, err := strconv.Atoi(c.Param("cryptoID"))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cryptoID must be an integer"))
	}
	q := &models.ForecastQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	meta, err := h.svc.ForecastMeta(c.Request().Context(), models.ModelKind(q.Model), cryptoID)
	if errors.Is(err, repository.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no forecasts stored"))
	}
	if err != nil {
		h.logger.Error("forecast meta error",
			xlogger.Int("crypto_id", cryptoID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("forecast meta read failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, meta)
}

func (h *ForecastEchoHandler) Recompute(c echo.Context) error {
	cryptoID, err := strconv.Atoi(c.Param("cryptoID"))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cryptoID must be an integer"))
	}

	job := h.svc.StartForecastJob(cryptoID)
	return xhttp.SuccessResponse(c, models.JobResponseFrom(job))
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.prices.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
