package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/media"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const (
	avatarField     = "avatar"
	coverImageField = "coverImage"
)

// HandlerImpl serves the account endpoints.
type HandlerImpl struct {
	userService    UserService
	stager         *media.Stager
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandlerImpl creates a new user handler. maxUploadBytes bounds a whole
// multipart request.
func NewHandlerImpl(userService UserService, stager *media.Stager, maxUploadBytes int64, logger *slog.Logger) *HandlerImpl {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &HandlerImpl{
		userService:    userService,
		stager:         stager,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Register godoc
// @Summary      Register a user
// @Description  Creates an account from a multipart form. The avatar file is required, the cover image optional.
// @Tags         Users
// @Accept       multipart/form-data
// @Produce      json
// @Param        fullname   formData string true  "Full name"
// @Param        email      formData string true  "Email"
// @Param        username   formData string true  "Username"
// @Param        password   formData string true  "Password"
// @Param        avatar     formData file   true  "Avatar image"
// @Param        coverImage formData file   false "Cover image"
// @Success      201 {object} types.ApiResponse{data=types.UserResponse} "User registered"
// @Failure      400 {object} types.ApiResponse "Missing fields or avatar"
// @Failure      409 {object} types.ApiResponse "Username or email taken"
// @Failure      500 {object} types.ApiResponse "Internal server error"
// @Router       /users/register [post]
func (h *HandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Register"))

	if !h.parseMultipart(w, r) {
		return
	}

	req := types.RegisterRequest{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Fullname: r.FormValue("fullname"),
		Password: r.FormValue("password"),
	}
	if err := api.ValidateStruct(req); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	avatarPath, err := h.stager.Stage(r, avatarField)
	if err != nil {
		l.WarnContext(ctx, "Failed to stage avatar", slog.Any("error", err))
		api.WriteError(w, r, h.logger, types.NewValidationError("Avatar file is required"))
		return
	}
	coverPath, err := h.stager.Stage(r, coverImageField)
	if err != nil {
		l.WarnContext(ctx, "Failed to stage cover image, ignoring it", slog.Any("error", err))
		coverPath = ""
	}
	// Uploader removes what it receives; this catches files the service never reached.
	defer media.Discard(avatarPath, coverPath)

	user, err := h.userService.Register(ctx, types.RegisterParams{
		Username:       req.Username,
		Email:          req.Email,
		Fullname:       req.Fullname,
		Password:       req.Password,
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	api.WriteSuccess(w, r, http.StatusCreated, user.Projection(), "User registered successfully")
}

// GetCurrentUser godoc
// @Summary      Current user
// @Description  Returns the authenticated user's profile.
// @Tags         Users
// @Produce      json
// @Success      200 {object} types.ApiResponse{data=types.UserResponse} "Current user"
// @Failure      401 {object} types.ApiResponse "Unauthorized"
// @Security     BearerAuth
// @Router       /users/current-user [get]
func (h *HandlerImpl) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetCurrentUser(r.Context(), userID)
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	api.WriteSuccess(w, r, http.StatusOK, user.Projection(), "Current user fetched successfully")
}

// ChangePassword godoc
// @Summary      Change password
// @Description  Replaces the password after checking the old one.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        passwords body types.ChangePasswordRequest true "Old and new password"
// @Success      200 {object} types.ApiResponse "Password changed"
// @Failure      400 {object} types.ApiResponse "Invalid input"
// @Failure      401 {object} types.ApiResponse "Old password mismatch or unauthorized"
// @Security     BearerAuth
// @Router       /users/change-password [post]
func (h *HandlerImpl) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "ChangePassword"))

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req types.ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.ValidateStruct(req); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.userService.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	api.WriteSuccess(w, r, http.StatusOK, struct{}{}, "Password changed successfully")
}

// UpdateAccountDetails godoc
// @Summary      Update account details
// @Description  Updates fullname and/or email.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        account body types.UpdateAccountParams true "Fields to change"
// @Success      200 {object} types.ApiResponse{data=types.UserResponse} "Account updated"
// @Failure      400 {object} types.ApiResponse "Invalid input"
// @Failure      401 {object} types.ApiResponse "Unauthorized"
// @Failure      409 {object} types.ApiResponse "Email taken"
// @Security     BearerAuth
// @Router       /users/update-account [patch]
func (h *HandlerImpl) UpdateAccountDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "UpdateAccountDetails"))

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req types.UpdateAccountParams
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.ValidateStruct(req); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	user, err := h.userService.UpdateAccountDetails(ctx, userID, req)
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	api.WriteSuccess(w, r, http.StatusOK, user.Projection(), "Account details updated successfully")
}

// UpdateAvatar godoc
// @Summary      Replace avatar
// @Tags         Users
// @Accept       multipart/form-data
// @Produce      json
// @Param        avatar formData file true "Avatar image"
// @Success      200 {object} types.ApiResponse{data=types.UserResponse} "Avatar updated"
// @Failure      400 {object} types.ApiResponse "Missing file or upload failure"
// @Failure      401 {object} types.ApiResponse "Unauthorized"
// @Security     BearerAuth
// @Router       /users/avatar [patch]
func (h *HandlerImpl) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, avatarField, "Avatar image updated successfully", h.userService.UpdateAvatar)
}

// UpdateCoverImage godoc
// @Summary      Replace cover image
// @Tags         Users
// @Accept       multipart/form-data
// @Produce      json
// @Param        coverImage formData file true "Cover image"
// @Success      200 {object} types.ApiResponse{data=types.UserResponse} "Cover image updated"
// @Failure      400 {object} types.ApiResponse "Missing file or upload failure"
// @Failure      401 {object} types.ApiResponse "Unauthorized"
// @Security     BearerAuth
// @Router       /users/cover-image [patch]
func (h *HandlerImpl) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, coverImageField, "Cover image updated successfully", h.userService.UpdateCoverImage)
}

func (h *HandlerImpl) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field, message string,
	update func(ctx context.Context, userID uuid.UUID, localPath string) (*types.User, error),
) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "replaceImage"), slog.String("field", field))

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if !h.parseMultipart(w, r) {
		return
	}

	path, err := h.stager.Stage(r, field)
	if err != nil {
		l.WarnContext(ctx, "Failed to stage upload", slog.Any("error", err))
		api.WriteError(w, r, h.logger, types.NewValidationError("Error while uploading "+field))
		return
	}
	defer media.Discard(path)

	user, err := update(ctx, userID, path)
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	api.WriteSuccess(w, r, http.StatusOK, user.Projection(), message)
}

func (h *HandlerImpl) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			api.WriteError(w, r, h.logger, types.NewValidationError("Upload is too large"))
			return false
		}
		h.logger.WarnContext(r.Context(), "Failed to parse multipart form", slog.Any("error", err))
		api.WriteError(w, r, h.logger, types.NewValidationError("Request must be multipart/form-data"))
		return false
	}
	return true
}

// userID reads the identity set by auth.Authenticate.
func (h *HandlerImpl) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || raw == "" {
		api.WriteError(w, r, h.logger, types.NewInvalidTokenError("Authentication required", nil))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		api.WriteError(w, r, h.logger, types.NewInvalidTokenError("Invalid access token", err))
		return uuid.Nil, false
	}
	return id, true
}
