package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
	"github.com/akulinin/pomosync/internal/service"
)

// Server bundles the handlers behind the REST API.
type Server struct {
	auth    service.AuthService
	configs service.ConfigService
	log     *zap.Logger
}

// NewServer constructs the handler set. A nil logger disables logging.
func NewServer(auth service.AuthService, configs service.ConfigService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, configs: configs, log: log}
}

type registerRequest struct {
	Username                  string   `json:"username"`
	DisplayName               string   `json:"displayName"`
	Email                     string   `json:"email"`
	Password                  string   `json:"password"`
	QuickAccessConfigurations []string `json:"quickAccessConfigurations"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type configRequest struct {
	Name   string        `json:"name"`
	Cycles []model.Cycle `json:"cycles"`
}

type quickAccessRequest struct {
	QuickAccessConfigurations []string `json:"quickAccessConfigurations"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", errs.ErrValidation))
		return
	}
	token, user, err := s.auth.Register(c.Request.Context(), service.RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		QuickAccess: req.QuickAccessConfigurations,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", errs.ErrValidation))
		return
	}
	token, user, err := s.auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Token: token, User: user})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.auth.Me(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) updateQuickAccess(c *gin.Context) {
	var req quickAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", errs.ErrValidation))
		return
	}
	accepted, err := s.auth.SetQuickAccess(c.Request.Context(), userID(c), req.QuickAccessConfigurations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quickAccessRequest{QuickAccessConfigurations: accepted})
}

func (s *Server) listConfigurations(c *gin.Context) {
	out, err := s.configs.List(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []model.Configuration{}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createConfiguration(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", errs.ErrValidation))
		return
	}
	cfg, err := s.configs.Create(c.Request.Context(), userID(c), req.Name, req.Cycles)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) updateConfiguration(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", errs.ErrValidation))
		return
	}
	cfg, err := s.configs.Update(c.Request.Context(), userID(c), c.Param("id"), req.Name, req.Cycles)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteConfiguration(c *gin.Context) {
	if err := s.configs.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func userID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(userIDKey)
	id, _ := v.(uuid.UUID)
	return id
}
