package handler

import (
	"github.com/gin-gonic/gin"

	"wet-coach-go/internal/middleware"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/token"
)

// Dependencies 汇集注册路由所需的全部服务。
type Dependencies struct {
	JWTManager    *token.JWTManager
	Users         service.UserService
	Conversations service.ConversationService
	Notes         service.NoteService
	Turns         service.TurnService
	Admin         service.AdminService
	Feedback      orchestrator.FeedbackGenerator
}

// RegisterRoutes 在 /api/v1 下注册全部 HTTP 路由，WebSocket 挂在 /chat/:token。
func RegisterRoutes(r *gin.Engine, d Dependencies) {
	userHandler := NewUserHandler(d.Users)
	authHandler := NewAuthHandler(d.Users)
	conversationHandler := NewConversationHandler(d.Conversations)
	noteHandler := NewNoteHandler(d.Conversations, d.Notes)
	turnHandler := NewTurnHandler(d.Turns)
	feedbackHandler := NewFeedbackHandler(d.Feedback)
	adminHandler := NewAdminHandler(d.Admin)
	chatHandler := NewChatHandler(d.Turns, d.Users, d.JWTManager)
	authRequired := middleware.AuthMiddleware(d.JWTManager, d.Users)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/guest", userHandler.Guest)

			authed := users.Group("/")
			authed.Use(authRequired)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		apiV1.GET("/personas", ListPersonas)

		secured := apiV1.Group("/")
		secured.Use(authRequired)
		{
			secured.POST("/conversation-turn", turnHandler.Submit)
			secured.POST("/conversation-turn/stop", turnHandler.Stop)

			secured.GET("/conversations", conversationHandler.GetConversations)
			secured.GET("/conversations/:id/messages", conversationHandler.GetMessages)
			secured.GET("/conversations/:id/transcript", conversationHandler.GetTranscript)

			secured.POST("/feedback", feedbackHandler.Generate)

			secured.POST("/notes", noteHandler.CreateNote)
			secured.GET("/notes", noteHandler.ListNotes)
			secured.GET("/notes/panel", noteHandler.Panel)
			secured.GET("/notes/search", noteHandler.Search)

			secured.PATCH("/votes", noteHandler.Vote)
			secured.GET("/votes", noteHandler.ListVotes)
		}

		// 督导路由组，需要同时通过认证和督导授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(authRequired, middleware.SupervisorOnly())
		{
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.GET("/conversations", adminHandler.ListConversations)
		}
	}

	r.GET("/chat/:token", chatHandler.Handle)
}
