package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/common"
	"github.com/datachat/datachat/internal/config"
	"github.com/datachat/datachat/internal/httpapi/handlers"
	"github.com/datachat/datachat/internal/httpapi/middleware"
	"github.com/datachat/datachat/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds)

	r.GET("/ping", h.Ping)

	// captcha
	r.POST("/captcha", h.SendCaptcha)

	// registration + auth
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// chats (JWT required)
	authGroup.POST("/chats", h.CreateChat)
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/:chat_id/turns", h.ListTurns)
	authGroup.DELETE("/chats/:chat_id", h.DeleteChat)

	// ask pipeline
	authGroup.POST("/ask", h.Ask)
	authGroup.POST("/ask/jobs", h.AskAsync)
	authGroup.GET("/ask/jobs/:job_id", h.GetAskJob)

	// feedback
	authGroup.POST("/turns/:turn_id/feedback", h.TurnFeedback)

	// few-shot example administration
	authGroup.POST("/fewshot", h.AddExample)
	authGroup.GET("/fewshot", h.ListExamples)
	authGroup.DELETE("/fewshot/:id", h.DeleteExample)
	authGroup.DELETE("/fewshot", h.DeleteAllExamples)

	return r
}
