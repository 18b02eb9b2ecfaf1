package surveillance

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports")
	g.GET("/age-groups", h.GetAgeGroups)
	g.GET("/gender-ratio", h.GetGenderRatio)
	g.GET("/incidence-rates", h.GetIncidenceRates)
	g.GET("/occupations", h.GetOccupations)
	g.GET("/trends", h.GetTrends)
}

func bindFilter(c echo.Context) (RawFilter, error) {
	var raw RawFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &raw); err != nil {
		return RawFilter{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return raw, nil
}

// httpError maps engine error kinds onto status codes. Anything unrecognized
// is a 500 with the cause kept internal.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidDimension):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed").SetInternal(err)
	}
}

func (h *Handler) GetAgeGroups(c echo.Context) error {
	raw, err := bindFilter(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetAgeGroupsReport(c.Request().Context(), raw)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetGenderRatio(c echo.Context) error {
	raw, err := bindFilter(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetGenderRatioReport(c.Request().Context(), raw)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetIncidenceRates(c echo.Context) error {
	raw, err := bindFilter(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetIncidenceRatesReport(c.Request().Context(), raw)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetOccupations(c echo.Context) error {
	raw, err := bindFilter(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetOccupationReport(c.Request().Context(), raw)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) GetTrends(c echo.Context) error {
	raw, err := bindFilter(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.GetTrendReport(c.Request().Context(), raw, c.QueryParam("period"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}
