package v1

import (
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
)

type PackageHandler struct {
	packages *service.PackageService
}

func NewPackageHandler(packages *service.PackageService) *PackageHandler {
	return &PackageHandler{packages: packages}
}

func (h *PackageHandler) List(c *gin.Context) {
	pkgs, err := h.packages.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pkgs)
}

func (h *PackageHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	pkg, err := h.packages.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pkg)
}

type createPackageRequest struct {
	Name            string  `json:"name" binding:"required"`
	Price           float64 `json:"price"`
	CanShare        bool    `json:"can_share"`
	CanSetReminders bool    `json:"can_set_reminders"`
	CanDelete       bool    `json:"can_delete"`
	MaxStorageMB    int     `json:"max_storage_mb"`
	MaxUploads      int     `json:"max_uploads"`
	MaxShares       int     `json:"max_shares"`
}

func (h *PackageHandler) Create(c *gin.Context) {
	var req createPackageRequest
	if !bindJSON(c, &req) {
		return
	}
	pkg, err := h.packages.Create(c.Request.Context(), principal(c), &subscription.CreatePackageCommand{
		Name:            req.Name,
		Price:           req.Price,
		CanShare:        req.CanShare,
		CanSetReminders: req.CanSetReminders,
		CanDelete:       req.CanDelete,
		MaxStorageMB:    req.MaxStorageMB,
		MaxUploads:      req.MaxUploads,
		MaxShares:       req.MaxShares,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, pkg)
}

type updatePackageRequest struct {
	Name            *string  `json:"name"`
	Price           *float64 `json:"price"`
	CanShare        *bool    `json:"can_share"`
	CanSetReminders *bool    `json:"can_set_reminders"`
	CanDelete       *bool    `json:"can_delete"`
	MaxStorageMB    *int     `json:"max_storage_mb"`
	MaxUploads      *int     `json:"max_uploads"`
	MaxShares       *int     `json:"max_shares"`
}

func (h *PackageHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updatePackageRequest
	if !bindJSON(c, &req) {
		return
	}
	pkg, err := h.packages.Update(c.Request.Context(), principal(c), id, &subscription.UpdatePackageCommand{
		Name:            req.Name,
		Price:           req.Price,
		CanShare:        req.CanShare,
		CanSetReminders: req.CanSetReminders,
		CanDelete:       req.CanDelete,
		MaxStorageMB:    req.MaxStorageMB,
		MaxUploads:      req.MaxUploads,
		MaxShares:       req.MaxShares,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pkg)
}

func (h *PackageHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.packages.Delete(c.Request.Context(), principal(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "package deleted")
}
