package routes

import (
	"log/slog"

	"booking/controllers"
	"booking/middlewares"

	"github.com/gin-gonic/gin"
)

func SetupRouter(cc *controllers.ChatController, allowedOrigins []string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.Logger(logger))
	r.Use(middlewares.CORS(allowedOrigins))

	r.GET("/health", controllers.Health)

	r.POST("/start_conversation", cc.StartConversation)
	r.POST("/validate_address", cc.ValidateAddress)
	r.POST("/chat", cc.Chat)

	// Both read the transcript or state live; nothing is cached locally.
	r.GET("/get_conversation/:conversation_id", cc.GetConversation)
	r.GET("/thread_status/:conversation_id", cc.ThreadStatus)

	return r
}
