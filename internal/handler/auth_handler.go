package handler

import (
	"net/http"
	"strings"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/authz"
	"testmgmt-service/internal/middleware"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/database"
	"testmgmt-service/pkg/jwtutil"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// confirmationTTL is how long an email confirmation token stays valid.
const confirmationTTL = 48 * time.Hour

// Login authenticates a user and issues a JWT carrying the TenantId claim.
// The matching TenantId cookie is set on the response so both tenant signals
// leave here in agreement.
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.AuthAttemptsCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Where("email = ?", strings.ToLower(req.Email)).First(&user)
	if result.Error != nil {
		log.Warn("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return apperror.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return apperror.Unauthorized("invalid credentials")
	}

	if !user.Active {
		log.Warn("Inactive user attempted login", zap.Uint("user_id", user.ID))
		prometheus.RecordAuthError("inactive_user")
		return apperror.Unauthorized("account is disabled")
	}

	token, err := jwtutil.GenerateToken(user.Email, user.ID, user.TenantID)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return apperror.Internal(err)
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.TenantCookieName,
		Value:    user.TenantID,
		Path:     "/",
		HttpOnly: true,
	})

	log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("tenant_id", user.TenantID))
	return c.JSON(http.StatusOK, echo.Map{
		"token":     token,
		"tenant_id": user.TenantID,
		"user": echo.Map{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// Register creates a user, and when the tenant code is new, the tenant
// itself with the caller as tenant-wide admin. Users joining an existing
// tenant start as viewers until an admin assigns more.
func Register(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		TenantCode string `json:"tenant_code"`
		TenantName string `json:"tenant_name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
	}
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse register request", zap.Error(err))
		return apperror.Validation(map[string]string{"body": "invalid request body"})
	}

	fields := map[string]string{}
	if req.TenantCode == "" {
		fields["tenant_code"] = "is required"
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}

	email := strings.ToLower(req.Email)

	var emailCount int64
	database.GetDB().Model(&model.User{}).Where("email = ?", email).Count(&emailCount)
	if emailCount > 0 {
		log.Warn("Email already registered", zap.String("email", email))
		return apperror.Conflict("email is already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperror.Internal(err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	var user model.User
	var confirmation model.EmailConfirmationToken
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		var tenant model.Tenant
		tenantResult := tx.Where("code = ?", req.TenantCode).First(&tenant)
		newTenant := tenantResult.Error == gorm.ErrRecordNotFound
		if tenantResult.Error != nil && !newTenant {
			return tenantResult.Error
		}

		if newTenant {
			name := req.TenantName
			if name == "" {
				name = req.TenantCode
			}
			tenant = model.Tenant{Code: req.TenantCode, Name: name, Active: true}
			if err := tx.Create(&tenant).Error; err != nil {
				return err
			}
		}

		user = model.User{
			TenantID:  tenant.Code,
			Email:     email,
			Password:  string(hashed),
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Active:    true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		user.CreatedBy = user.ID
		user.UpdatedBy = user.ID
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"created_by": user.ID, "updated_by": user.ID,
		}).Error; err != nil {
			return err
		}

		roleType := model.RoleViewer
		if newTenant {
			roleType = model.RoleAdmin
		}
		role := model.Role{
			TenantID:  tenant.Code,
			UserID:    user.ID,
			RoleType:  roleType,
			CreatedBy: user.ID,
			UpdatedBy: user.ID,
		}
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		if err := authz.BindDefaultPermissions(tx, &role); err != nil {
			return err
		}

		confirmation = model.EmailConfirmationToken{
			TenantID:  tenant.Code,
			UserID:    user.ID,
			Token:     uuid.New().String(),
			ExpiresAt: time.Now().Add(confirmationTTL),
		}
		return tx.Create(&confirmation).Error
	})
	if err != nil {
		log.Error("Registration failed", zap.String("email", email), zap.Error(err))
		return apperror.Internal(err)
	}

	log.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("tenant_id", user.TenantID))
	return c.JSON(http.StatusCreated, echo.Map{
		"user": echo.Map{
			"id":        user.ID,
			"email":     user.Email,
			"tenant_id": user.TenantID,
		},
		// Returned directly until an outbound mail channel exists.
		"confirmation_token": confirmation.Token,
	})
}

// ConfirmEmail consumes a confirmation token and marks the user's email
// confirmed. Tokens are single-use and expire.
func ConfirmEmail(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return apperror.Validation(map[string]string{"token": "is required"})
	}

	var confirmation model.EmailConfirmationToken
	result := database.GetDB().Where("token = ?", req.Token).First(&confirmation)
	if result.Error != nil {
		return notFoundOr(result.Error, "confirmation token")
	}

	if confirmation.ConfirmedAt != nil {
		return apperror.Conflict("token has already been used")
	}
	if time.Now().After(confirmation.ExpiresAt) {
		return apperror.Validation(map[string]string{"token": "has expired"})
	}

	now := time.Now()
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.EmailConfirmationToken{}).
			Where("id = ?", confirmation.ID).
			Update("confirmed_at", &now).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).
			Where("id = ?", confirmation.UserID).
			Update("email_confirmed", true).Error
	})
	if err != nil {
		log.Error("Email confirmation failed", zap.Uint("user_id", confirmation.UserID), zap.Error(err))
		return apperror.Internal(err)
	}

	log.Info("Email confirmed", zap.Uint("user_id", confirmation.UserID))
	return c.JSON(http.StatusOK, echo.Map{"message": "email confirmed"})
}
