package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(Recover(s.log), RequestLogger(s.log))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := engine.Group("/users")
	users.POST("/register", s.register)
	users.POST("/login", s.login)

	authed := engine.Group("/", Auth(s.auth))
	authed.GET("/users/me", s.me)
	authed.PUT("/users/quick-access", s.updateQuickAccess)

	configs := authed.Group("/configurations")
	configs.GET("", s.listConfigurations)
	configs.POST("", s.createConfiguration)
	configs.PUT("/:id", s.updateConfiguration)
	configs.DELETE("/:id", s.deleteConfiguration)

	return engine
}
