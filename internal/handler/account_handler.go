package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/eaglelearn/account-api/internal/query"
	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/eaglelearn/account-api/shared/cqrs"
	"github.com/eaglelearn/account-api/shared/mergepatch"
	"github.com/eaglelearn/account-api/shared/middleware"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/gin-gonic/gin"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	UpdateAccount(context.Context, cqrs.UpdateAccountCommand) (models.AccountSettings, error)
	DeactivateAccount(context.Context, cqrs.DeactivateAccountCommand) (models.AccountSettings, error)
	RetireMailings(context.Context, cqrs.RetireMailingsCommand) error
	DeactivateLogout(context.Context, cqrs.DeactivateLogoutCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccountSettings(context.Context, cqrs.GetAccountSettingsQuery) ([]models.AccountSettings, error)
}

// AccountHandler routes requests to the command or query service as appropriate.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type RetireMailingsRequest struct {
	RetiredUsername string `json:"retired_username"`
}

type DeactivateLogoutRequest struct {
	User string `json:"user"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

// RegisterRoutes mounts the account endpoints on r. Authentication must
// already be applied to r.
func (h *AccountHandler) RegisterRoutes(r gin.IRoutes, retirementServiceUsername string) {
	canRetire := middleware.RequireCapability(middleware.CanRetireUser(retirementServiceUsername))
	canDeactivate := middleware.RequireCapability(middleware.CanDeactivateUser)

	r.GET("/me", h.Me)
	r.GET("/accounts", h.ListAccounts)
	r.POST("/accounts/deactivate_logout/", canRetire, h.DeactivateLogout)
	r.GET("/accounts/:username/", h.GetAccount)
	r.PATCH("/accounts/:username/", middleware.RequireContentType(mergepatch.ContentType), h.UpdateAccount)
	r.POST("/accounts/:username/deactivate/", canDeactivate, h.DeactivateAccount)
	r.POST("/accounts/:username/retire_mailings/", canRetire, h.RetireMailings)
}

func (h *AccountHandler) Me(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": caller.Username})
}

// ListAccounts serves ?username=a,b. Without usernames it returns the
// caller's own account.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)

	settings, err := h.queries.GetAccountSettings(c.Request.Context(), cqrs.GetAccountSettingsQuery{
		Requester: caller,
		Usernames: query.ParseUsernames(c.Query("username")),
		View:      c.Query("view"),
	})
	if err != nil {
		respondWithReadError(c, caller, err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)

	settings, err := h.queries.GetAccountSettings(c.Request.Context(), cqrs.GetAccountSettingsQuery{
		Requester: caller,
		Usernames: []string{c.Param("username")},
		View:      c.Query("view"),
	})
	if err != nil {
		respondWithReadError(c, caller, err)
		return
	}

	c.JSON(http.StatusOK, settings[0])
}

func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)

	body, err := c.GetRawData()
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	patch, err := mergepatch.Parse(body)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.commands.UpdateAccount(c.Request.Context(), cqrs.UpdateAccountCommand{
		Requester: caller,
		Username:  c.Param("username"),
		Patch:     patch,
	})
	if err != nil {
		var validationErr *apperrors.AccountValidationError
		var updateErr *apperrors.AccountUpdateError
		switch {
		case errors.Is(err, apperrors.ErrUserNotAuthorized):
			respondConcealed(c, caller)
		case errors.Is(err, apperrors.ErrUserNotFound):
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
		case errors.As(err, &validationErr):
			middleware.RespondWithFieldErrors(c, validationErr)
		case errors.As(err, &updateErr):
			middleware.RespondWithUpdateError(c, updateErr)
		default:
			middleware.RespondWithInternalError(c, err, "Failed to update account")
		}
		return
	}

	c.JSON(http.StatusOK, settings)
}

// DeactivateAccount makes the target's password unusable. Repeating it is
// harmless.
func (h *AccountHandler) DeactivateAccount(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)

	settings, err := h.commands.DeactivateAccount(c.Request.Context(), cqrs.DeactivateAccountCommand{
		Requester: caller,
		Username:  c.Param("username"),
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
			return
		}
		middleware.RespondWithInternalError(c, err, "Failed to deactivate account")
		return
	}

	c.JSON(http.StatusOK, settings)
}

// RetireMailings opts a retiring account out of every mailing. Failures
// other than a missing account answer 500 with the error text.
func (h *AccountHandler) RetireMailings(c *gin.Context) {
	var req RetireMailingsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.commands.RetireMailings(c.Request.Context(), cqrs.RetireMailingsCommand{
		Username:        c.Param("username"),
		RetiredUsername: req.RetiredUsername,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "User not found")
			return
		}
		middleware.RespondWithInternalError(c, err, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) DeactivateLogout(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)

	var req DeactivateLogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.User == "" {
		middleware.RespondWithError(c, http.StatusNotFound, "The user was not specified.")
		return
	}

	err := h.commands.DeactivateLogout(c.Request.Context(), cqrs.DeactivateLogoutCommand{
		Requester: caller,
		Username:  req.User,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "The user \""+req.User+"\" does not exist.")
			return
		}
		middleware.RespondWithInternalError(c, err, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

func respondWithReadError(c *gin.Context, caller models.Caller, err error) {
	if errors.Is(err, apperrors.ErrUserNotFound) {
		respondConcealed(c, caller)
		return
	}
	middleware.RespondWithInternalError(c, err, "Failed to load account settings")
}

func respondConcealed(c *gin.Context, caller models.Caller) {
	status := middleware.ConcealedStatus(caller.IsStaff)
	if status == http.StatusForbidden {
		middleware.RespondWithError(c, status, "You do not have permission to perform this action.")
		return
	}
	middleware.RespondWithError(c, status, "User not found")
}
