package middleware

import (
	"strings"
	"time"

	"testmgmt-service/internal/apperror"
	"testmgmt-service/internal/model"
	"testmgmt-service/pkg/jwtutil"
	"testmgmt-service/pkg/logger"
	"testmgmt-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TenantCookieName is the client-set cookie carrying the tenant code.
const TenantCookieName = "TenantId"

// loginExemptPath marks requests that bypass tenant verification.
const loginExemptPath = "/api/auth/login"

// isLoginExempt reports whether the path bypasses authentication and tenant
// verification. Case-insensitive substring match, matching the observed
// client behavior of mixed-case paths.
func isLoginExempt(path string) bool {
	return strings.Contains(strings.ToLower(path), loginExemptPath)
}

// TenantVerification gates every request on three independent tenant
// signals agreeing: the TenantId cookie, the TenantId claim inside the JWT,
// and a live Tenant row. The presence and equality checks run before the
// database lookup so malformed requests never cost a round trip.
//
// On success the verified tenant code is stored in the echo context under
// "tenant_id" for all downstream components.
func TenantVerification(db func() *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			if isLoginExempt(c.Request().URL.Path) {
				return next(c)
			}

			// Signal 1: the client-set cookie.
			var cookieTenant string
			if cookie, err := c.Cookie(TenantCookieName); err == nil {
				cookieTenant = cookie.Value
			}

			// Signal 2: the claim inside the validated auth token.
			var claimTenant string
			if claims, ok := c.Get("claims").(*jwtutil.UserClaims); ok {
				claimTenant = claims.TenantID
			}

			if cookieTenant == "" || claimTenant == "" {
				log.Warn("Tenant id missing from request",
					zap.Bool("cookie_present", cookieTenant != ""),
					zap.Bool("claim_present", claimTenant != ""))
				prometheus.RecordTenantRejection("missing")
				return apperror.TenantIDMissing()
			}

			if cookieTenant != claimTenant {
				log.Warn("Tenant id mismatch between cookie and token claim",
					zap.String("cookie_tenant", cookieTenant),
					zap.String("claim_tenant", claimTenant))
				prometheus.RecordTenantRejection("mismatch")
				return apperror.TenantIDMismatch()
			}

			// Signal 3: a live tenant row. Soft-deleted tenants are excluded
			// by the default query scope.
			defer prometheus.TrackDBOperation("query")(time.Now())
			var count int64
			if err := db().Model(&model.Tenant{}).
				Where("code = ?", cookieTenant).
				Count(&count).Error; err != nil {
				log.Error("Tenant lookup failed", zap.Error(err))
				return apperror.Internal(err)
			}
			if count == 0 {
				log.Warn("Unknown or deleted tenant", zap.String("tenant_id", cookieTenant))
				prometheus.RecordTenantRejection("invalid")
				return apperror.InvalidTenant(cookieTenant)
			}

			c.Set("tenant_id", cookieTenant)
			c.Request().Header.Set("X-Tenant-ID", cookieTenant)

			log.Debug("Request verified for tenant", zap.String("tenant_id", cookieTenant))
			return next(c)
		}
	}
}

// TenantID returns the verified tenant code from the request context.
func TenantID(c echo.Context) (string, bool) {
	id, ok := c.Get("tenant_id").(string)
	return id, ok
}
