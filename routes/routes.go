package routes

import (
	"net/http"

	"sbb/handlers"
	"sbb/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	questionHandler *handlers.QuestionHandler,
	answerHandler *handlers.AnswerHandler,
	streamHandler *handlers.StreamHandler,
	tokens middleware.TokenParser,
) {
	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Public read routes
		api.GET("/questions", questionHandler.ListQuestions)
		api.GET("/questions/:id", questionHandler.GetQuestion)
		api.GET("/answers/:id", answerHandler.GetAnswer)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(tokens))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			protected.POST("/questions", questionHandler.CreateQuestion)
			protected.PUT("/questions/:id", questionHandler.UpdateQuestion)
			protected.DELETE("/questions/:id", questionHandler.DeleteQuestion)
			protected.POST("/questions/:id/answers", answerHandler.CreateAnswer)

			protected.PUT("/answers/:id", answerHandler.UpdateAnswer)
			protected.DELETE("/answers/:id", answerHandler.DeleteAnswer)
		}
	}

	ws := router.Group("/ws")
	{
		ws.GET("/feed", streamHandler.Feed)
		ws.GET("/questions/:id", streamHandler.Question)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
