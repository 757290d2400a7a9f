// Package httpapi exposes the northbound operations spec §6
// constrains but does not own: triggering synchronization, clearing the
// per-domain cache, and manual bundle registration. Thin Echo handlers,
// no business logic.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/fhirshared"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
	"github.com/minvws/nvi-registration-service/internal/sync"
)

// Synchronizer is the subset of *sync.Engine the HTTP surface needs.
type Synchronizer interface {
	SynchronizeAllDomains(ctx context.Context) (map[string][]sync.UpdateScheme, error)
	SynchronizeDomain(ctx context.Context, d domain.DataDomain) (map[string][]sync.UpdateScheme, error)
	ClearCache(d *domain.DataDomain)
	GetAllowedDomains() []domain.DataDomain
}

// BundleRegistrar is the subset of *bundleregistration.Service the
// HTTP surface needs.
type BundleRegistrar interface {
	Register(ctx context.Context, bundle fhirshared.Bundle) (*fhirshared.Bundle, error)
}

// Handler wires the synchronization and bundle-registration operations
// onto Echo routes.
type Handler struct {
	sync    Synchronizer
	bundles BundleRegistrar
}

func New(sync Synchronizer, bundles BundleRegistrar) *Handler {
	return &Handler{sync: sync, bundles: bundles}
}

// RegisterRoutes registers every northbound route on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sync", h.SynchronizeAll)
	g.POST("/sync/:domain", h.SynchronizeOne)
	g.POST("/cache/clear", h.ClearCache)
	g.POST("/registration/bundle", h.RegisterBundle)
}

// SynchronizeAll handles POST /sync.
func (h *Handler) SynchronizeAll(c echo.Context) error {
	result, err := h.sync.SynchronizeAllDomains(c.Request().Context())
	if err != nil {
		return outcomeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// SynchronizeOne handles POST /sync/:domain.
func (h *Handler) SynchronizeOne(c echo.Context) error {
	d := domain.DataDomain(c.Param("domain"))
	if !isAllowedDomain(h.sync.GetAllowedDomains(), d) {
		return c.JSON(http.StatusBadRequest, referrors.Outcome(referrors.New(referrors.KindInvalidResource, "unknown data domain: "+d.String())))
	}

	result, err := h.sync.SynchronizeDomain(c.Request().Context(), d)
	if err != nil {
		return outcomeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// clearCacheRequest is the optional JSON body for POST /cache/clear.
// An absent or empty domain clears every configured domain.
type clearCacheRequest struct {
	Domain string `json:"domain,omitempty"`
}

// ClearCache handles POST /cache/clear.
func (h *Handler) ClearCache(c echo.Context) error {
	var req clearCacheRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, referrors.Outcome(referrors.New(referrors.KindInvalidResource, err.Error())))
		}
	}

	if req.Domain == "" {
		h.sync.ClearCache(nil)
	} else {
		d := domain.DataDomain(req.Domain)
		h.sync.ClearCache(&d)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterBundle handles POST /registration/bundle.
func (h *Handler) RegisterBundle(c echo.Context) error {
	var bundle fhirshared.Bundle
	body, err := readBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, referrors.Outcome(referrors.New(referrors.KindInvalidResource, err.Error())))
	}
	if err := json.Unmarshal(body, &bundle); err != nil {
		return c.JSON(http.StatusBadRequest, referrors.Outcome(referrors.New(referrors.KindInvalidResource, err.Error())))
	}

	result, err := h.bundles.Register(c.Request().Context(), bundle)
	if err != nil {
		return outcomeError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func readBody(c echo.Context) ([]byte, error) {
	if c.Request().Body == nil {
		return nil, nil
	}
	defer c.Request().Body.Close()
	return io.ReadAll(c.Request().Body)
}

func isAllowedDomain(allowed []domain.DataDomain, d domain.DataDomain) bool {
	for _, a := range allowed {
		if a == d {
			return true
		}
	}
	return false
}

func outcomeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	if re, ok := err.(*referrors.Error); ok {
		status = referrors.HTTPStatus(re.Kind)
	}
	return c.JSON(status, referrors.Outcome(err))
}
