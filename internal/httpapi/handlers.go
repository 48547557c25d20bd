package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/geofence"
	"geoattend/internal/identity"
	"geoattend/internal/location"
	"geoattend/internal/queue"
)

const (
	defaultTop = 10
	maxTop     = 100
)

// Healthz reports every configured dependency.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{}
	code := http.StatusOK
	for name, check := range h.health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			code = http.StatusServiceUnavailable
		}
	}
	body["status"] = "ok"
	if code != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(code, body)
}

// Geofence describes the admission area so clients can show it.
func (h *Handler) Geofence(c *gin.Context) {
	f := h.svc.Fence()
	c.JSON(http.StatusOK, gin.H{
		"latitude":      f.Center.Lat,
		"longitude":     f.Center.Lon,
		"radius_meters": f.Radius,
	})
}

// CreateSession exchanges an identity provider token for a session pair.
func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "id_token is required."})
		return
	}
	user, err := h.provider.Verify(c.Request.Context(), req.IDToken)
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity", "message": "Your account has no usable email address."})
		return
	case err != nil:
		h.log.InfoContext(c.Request.Context(), "sign in rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "message": "Sign in failed."})
		return
	}
	h.issue(c, http.StatusCreated, user)
}

// RefreshSession trades a refresh token for a new pair.
func (h *Handler) RefreshSession(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "refresh_token is required."})
		return
	}
	claims, err := h.issuer.Parse(req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "message": "Please sign in again."})
		return
	}
	h.issue(c, http.StatusOK, claims.User())
}

func (h *Handler) issue(c *gin.Context, code int, user identity.User) {
	pair, err := h.issuer.Issue(user)
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "token issue failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed", "message": "Sign in failed."})
		return
	}
	key, _ := user.Key()
	c.JSON(code, gin.H{
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_at":  pair.AccessExp.Unix(),
		"refresh_expires_at": pair.RefreshExp.Unix(),
		"user":               gin.H{"key": key, "email": user.Email, "name": user.Name},
	})
}

type markRequest struct {
	Permission    string   `json:"permission"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	LocationError string   `json:"location_error"`
	Timezone      string   `json:"timezone"`
}

// Mark records today's attendance for the signed-in user from the location
// the client reported.
func (h *Handler) Mark(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "message": "Malformed request."})
		return
	}
	zone, ok := h.zone(c, req.Timezone)
	if !ok {
		return
	}

	res, err := h.svc.Mark(c.Request.Context(), attendance.MarkRequest{
		User: user,
		Source: location.Reported{
			Permission: location.ParsePermission(req.Permission),
			Lat:        req.Latitude,
			Lon:        req.Longitude,
			Failure:    req.LocationError,
		},
		Zone: zone,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": attendance.Message(err)})
		return
	}

	body := gin.H{
		"status":          res.Status,
		"message":         res.Message(),
		"distance_meters": res.Decision.Rounded(),
		"radius_meters":   res.Decision.Radius,
	}
	if res.Status == attendance.StatusOutside {
		c.JSON(http.StatusForbidden, body)
		return
	}
	body["date"] = res.Date
	body["days"] = len(res.Record.Dates)
	if res.Status == attendance.StatusMarked {
		h.publish(c.Request.Context(), res)
	}
	c.JSON(http.StatusOK, body)
}

// publish announces a new mark; a failure only costs leaderboard freshness.
func (h *Handler) publish(ctx context.Context, res attendance.Result) {
	if h.queue == nil {
		return
	}
	ev := attendance.NewMarkedEvent(*res.Record, res.Date, time.Now())
	body, err := ev.Encode()
	if err != nil {
		h.log.ErrorContext(ctx, "encode marked event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.queue.Publish(ctx, queue.NewMessage(attendance.EventMarked, body)); err != nil {
		h.log.WarnContext(ctx, "queue publish failed", "key", ev.Key, "error", err)
	}
}

// Me returns the signed-in user's history.
func (h *Handler) Me(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	zone, ok := h.zone(c, c.Query("timezone"))
	if !ok {
		return
	}
	p, err := h.svc.Profile(c.Request.Context(), user, zone)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": "Could not load your attendance."})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Leaderboard returns every user ranked from the store.
func (h *Handler) Leaderboard(c *gin.Context) {
	board, err := h.svc.Leaderboard(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": "Could not load the leaderboard."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"standings": board})
}

// Top returns the first entries of the cached leaderboard, computing them
// from the store when no cache is configured or it fails.
func (h *Handler) Top(c *gin.Context) {
	limit := defaultTop
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTop {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "message": "limit must be between 1 and 100."})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		top, err := h.cache.Top(ctx, limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"standings": top, "source": "cache"})
			return
		}
		h.log.WarnContext(ctx, "leaderboard cache unavailable", "error", err)
	}
	board, err := h.svc.Leaderboard(ctx)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": "Could not load the leaderboard."})
		return
	}
	if len(board) > limit {
		board = board[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"standings": board, "source": "store"})
}

// zone resolves an IANA zone name; empty means the server default.
func (h *Handler) zone(c *gin.Context, name string) (*time.Location, bool) {
	if name == "" {
		return nil, true
	}
	z, err := time.LoadLocation(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timezone", "message": "Unknown time zone " + strconv.Quote(name) + "."})
		return nil, false
	}
	return z, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, geofence.ErrInvalidCoordinate), errors.Is(err, identity.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrMarkInProgress):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrLocationUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attendance.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
