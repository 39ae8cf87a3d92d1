package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/crypto"
	"bybit-autotrader/pkg/logging"
)

type credentialsRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

type subscriptionRequest struct {
	Days int `json:"days" binding:"required,min=1,max=3650"`
}

type tradesQuery struct {
	Limit int `form:"limit"`
}

func (q *tradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

// userView is a profile with credentials masked.
type userView struct {
	ID                 string         `json:"id"`
	Username           string         `json:"username"`
	APIKey             string         `json:"api_key"`
	Encrypted          bool           `json:"encrypted"`
	HasSecret          bool           `json:"has_secret"`
	SubUntil           string         `json:"sub_until,omitempty"`
	SubscriptionActive bool           `json:"subscription_active"`
	AuthFailures       int            `json:"auth_failures"`
	Disabled           bool           `json:"disabled"`
	Testnet            bool           `json:"testnet"`
	Settings           store.Settings `json:"settings"`
}

func newUserView(p store.Profile, now time.Time) userView {
	key, sealed := "", crypto.IsSealed(p.APIKey)
	switch {
	case sealed:
		key = "ENC[v" + strconv.Itoa(crypto.ParseVersion(p.APIKey)) + "]"
	case strings.TrimSpace(p.APIKey) != "":
		key = logging.MaskKey(p.APIKey)
	}
	return userView{
		ID:                 p.ID,
		Username:           p.Username,
		APIKey:             key,
		Encrypted:          sealed,
		HasSecret:          strings.TrimSpace(p.APISecret) != "",
		SubUntil:           p.SubUntil,
		SubscriptionActive: p.SubscriptionActive(now),
		AuthFailures:       p.AuthFailures,
		Disabled:           p.Disabled(),
		Testnet:            p.Testnet(),
		Settings:           p.Settings,
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondStoreError maps store errors onto HTTP statuses.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, store.ErrEmptyID), errors.Is(err, store.ErrEmptyKey):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) listUsers(c *gin.Context) {
	now := time.Now()
	profiles := s.Store.Profiles()
	out := make([]userView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, newUserView(p, now))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getUser(c *gin.Context) {
	p, err := s.Store.Lookup(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(p, time.Now()))
}

func (s *Server) setCredentials(c *gin.Context) {
	id := c.Param("id")
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	key, secret := strings.TrimSpace(req.APIKey), strings.TrimSpace(req.APISecret)
	if key == "" || secret == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "api_key and api_secret are required")
		return
	}

	if s.Sealer != nil && s.Sealer.Enabled() {
		var err error
		if key, err = s.Sealer.Seal(key); err != nil {
			respondError(c, http.StatusInternalServerError, "ENCRYPTION_FAILED", "failed to encrypt credentials")
			return
		}
		if secret, err = s.Sealer.Seal(secret); err != nil {
			respondError(c, http.StatusInternalServerError, "ENCRYPTION_FAILED", "failed to encrypt credentials")
			return
		}
	}
	if err := s.Store.SetCredentials(id, key, secret); err != nil {
		respondStoreError(c, err)
		return
	}
	s.log.Info().Str("user", id).Str("api_key", logging.MaskKey(req.APIKey)).Str("by", CurrentSubject(c)).Msg("credentials updated")
	s.respondUser(c, id)
}

func (s *Server) grantSubscription(c *gin.Context) {
	id := c.Param("id")
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := s.Store.SetSubscription(id, req.Days); err != nil {
		respondStoreError(c, err)
		return
	}
	s.log.Info().Str("user", id).Int("days", req.Days).Str("by", CurrentSubject(c)).Msg("subscription granted")
	s.respondUser(c, id)
}

func (s *Server) updateSetting(c *gin.Context) {
	id, key := c.Param("id"), c.Param("key")
	var req map[string]any
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	value, ok := req["value"]
	if !ok {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "value is required")
		return
	}
	settings, err := s.Store.UpdateSetting(id, key, value)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	s.log.Info().Str("user", id).Str("key", key).Interface("value", value).Str("by", CurrentSubject(c)).Msg("setting updated")
	c.JSON(http.StatusOK, settings)
}

func (s *Server) enableAuth(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.Store.Lookup(id); err != nil {
		respondStoreError(c, err)
		return
	}
	p, err := s.Auth.Reset(id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(p, time.Now()))
}

func (s *Server) getTrades(c *gin.Context) {
	id := c.Param("id")
	var q tradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q.normalize()
	if _, err := s.Store.Lookup(id); err != nil {
		respondStoreError(c, err)
		return
	}
	trades := s.Store.TradesFor(c.Request.Context(), id, q.Limit)
	if trades == nil {
		trades = []store.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) diagnose(c *gin.Context) {
	rep, err := s.Auth.Diagnose(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report": rep,
		"lines":  rep.Lines(),
	})
}

func (s *Server) respondUser(c *gin.Context, id string) {
	p, err := s.Store.Lookup(id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(p, time.Now()))
}
