package v1

import (
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserHandler struct {
	users   *service.UserService
	records *service.RecordService
}

func NewUserHandler(users *service.UserService, records *service.RecordService) *UserHandler {
	return &UserHandler{users: users, records: records}
}

func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.users.Profile(c.Request.Context(), principal(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponse(u))
}

type updateProfileRequest struct {
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), principal(c), &service.UpdateProfileCommand{Email: req.Email, Phone: req.Phone})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponse(u))
}

func (h *UserHandler) MyPackage(c *gin.Context) {
	summary, err := h.users.PackageSummary(c.Request.Context(), principal(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, summary)
}

func (h *UserHandler) ListDoctors(c *gin.Context) {
	doctors, err := h.users.ListDoctors(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponses(doctors))
}

func (h *UserHandler) ListMyPatients(c *gin.Context) {
	patients, err := h.users.ListMyPatients(c.Request.Context(), principal(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponses(patients))
}

func (h *UserHandler) ListAllPatients(c *gin.Context) {
	page, err := h.users.ListAllPatients(c.Request.Context(), principal(c),
		c.Query("search"), parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedUsers(page))
}

type createUserRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	Role            string `json:"role"`
	Phone           string `json:"phone"`
	PackageID       string `json:"package_id"`
	CanShare        *bool  `json:"can_share"`
	CanSetReminders *bool  `json:"can_set_reminders"`
	CanDelete       *bool  `json:"can_delete"`
}

func (r *createUserRequest) command(pkgID *uuid.UUID) *domain.CreateUserCommand {
	return &domain.CreateUserCommand{
		Username:        r.Username,
		Email:           r.Email,
		Password:        r.Password,
		Role:            domain.Role(r.Role),
		Phone:           r.Phone,
		PackageID:       pkgID,
		CanShare:        r.CanShare,
		CanSetReminders: r.CanSetReminders,
		CanDelete:       r.CanDelete,
	}
}

func (h *UserHandler) CreatePatient(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	pkgID, ok := parseOptionalUUID(c, "package_id", req.PackageID)
	if !ok {
		return
	}
	u, err := h.users.CreatePatient(c.Request.Context(), principal(c), req.command(pkgID))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toUserResponse(u))
}

func (h *UserHandler) UpdatePatient(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.UpdatePatient(c.Request.Context(), principal(c), id, &service.UpdateProfileCommand{Email: req.Email, Phone: req.Phone})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponse(u))
}

func (h *UserHandler) AssignPatient(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.users.AssignPatient(c.Request.Context(), principal(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "patient assigned")
}

func (h *UserHandler) UnassignPatient(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.users.UnassignPatient(c.Request.Context(), principal(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "patient removed")
}

func (h *UserHandler) PatientRecords(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	page, err := h.records.ListForPatient(c.Request.Context(), principal(c), id,
		parseQueryInt(c, "page", 1), parseQueryInt(c, "page_size", 20))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedRecords(page))
}

// Admin endpoints.

func (h *UserHandler) ListUsers(c *gin.Context) {
	q := &domain.ListUsersQuery{
		Search:   c.Query("search"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("role"); raw != "" {
		role := domain.Role(raw)
		if !role.IsValid() {
			respondServiceError(c, domain.ErrInvalidRole)
			return
		}
		q.Role = &role
	}
	page, err := h.users.ListUsers(c.Request.Context(), principal(c), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toPagedUsers(page))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	u, err := h.users.GetUser(c.Request.Context(), principal(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponse(u))
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	pkgID, ok := parseOptionalUUID(c, "package_id", req.PackageID)
	if !ok {
		return
	}
	u, err := h.users.CreateUser(c.Request.Context(), principal(c), req.command(pkgID))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, toUserResponse(u))
}

type updateUserRequest struct {
	Email           *string  `json:"email"`
	Phone           *string  `json:"phone"`
	Password        *string  `json:"password"`
	Role            *string  `json:"role"`
	PackageID       *string  `json:"package_id"`
	ClearPackage    bool     `json:"clear_package"`
	CanShare        *bool    `json:"can_share"`
	CanSetReminders *bool    `json:"can_set_reminders"`
	CanDelete       *bool    `json:"can_delete"`
	ClearOverrides  []string `json:"clear_overrides"`
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &domain.UpdateUserCommand{
		Email:           req.Email,
		Phone:           req.Phone,
		Password:        req.Password,
		ClearPackage:    req.ClearPackage,
		CanShare:        req.CanShare,
		CanSetReminders: req.CanSetReminders,
		CanDelete:       req.CanDelete,
		ClearOverrides:  req.ClearOverrides,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		cmd.Role = &role
	}
	if req.PackageID != nil {
		pkgID, ok := parseOptionalUUID(c, "package_id", *req.PackageID)
		if !ok {
			return
		}
		cmd.PackageID = pkgID
	}

	u, err := h.users.UpdateUser(c.Request.Context(), principal(c), id, cmd)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toUserResponse(u))
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteUser(c.Request.Context(), principal(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondMessage(c, "user deleted")
}
