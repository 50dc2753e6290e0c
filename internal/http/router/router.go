package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casagrown/backend/internal/config"
	"github.com/casagrown/backend/internal/http/handlers"
	"github.com/casagrown/backend/internal/http/middleware"
	"github.com/casagrown/backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	orderHandler *handlers.OrderHandler,
	escalationHandler *handlers.EscalationHandler,
	walletHandler *handlers.WalletHandler,
	conversationHandler *handlers.ConversationHandler,
	mediaHandler *handlers.MediaHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)
	r.StaticFS("/media", http.Dir(cfg.MediaStoragePath))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	api.GET("/ws", wsHandler.Handle)
	api.GET("/users/:id", middleware.UUIDValidator("id"), profileHandler.GetUserProfile)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.UpdateMe)

		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders/my", orderHandler.ListMyOrders)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.GetOrder)
		protected.GET("/orders/:id/actions", middleware.UUIDValidator("id"), orderHandler.GetActions)
		protected.PATCH("/orders/:id", middleware.UUIDValidator("id"), orderHandler.Modify)
		protected.POST("/orders/:id/accept", middleware.UUIDValidator("id"), orderHandler.Accept)
		protected.POST("/orders/:id/reject", middleware.UUIDValidator("id"), orderHandler.Reject)
		protected.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), orderHandler.Cancel)
		protected.POST("/orders/:id/deliver", middleware.UUIDValidator("id"), orderHandler.MarkDelivered)
		protected.POST("/orders/:id/confirm-delivery", middleware.UUIDValidator("id"), orderHandler.ConfirmDelivery)
		protected.POST("/orders/:id/rating", middleware.UUIDValidator("id"), orderHandler.SubmitRating)
		protected.POST("/orders/:id/suggest-date", middleware.UUIDValidator("id"), orderHandler.SuggestDate)
		protected.POST("/orders/:id/suggest-quantity", middleware.UUIDValidator("id"), orderHandler.SuggestQuantity)

		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), escalationHandler.Dispute)
		protected.POST("/orders/:id/escalate", middleware.UUIDValidator("id"), escalationHandler.Escalate)
		protected.POST("/orders/:id/resolve", middleware.UUIDValidator("id"), escalationHandler.Resolve)
		protected.POST("/orders/:id/refund-offers", middleware.UUIDValidator("id"), escalationHandler.MakeRefundOffer)
		protected.POST("/orders/:id/refund-offers/:offerId/accept", middleware.UUIDValidator("id"), middleware.UUIDValidator("offerId"), escalationHandler.AcceptRefundOffer)
		protected.POST("/orders/:id/refund-offers/:offerId/reject", middleware.UUIDValidator("id"), middleware.UUIDValidator("offerId"), escalationHandler.RejectRefundOffer)

		protected.GET("/conversations", conversationHandler.ListMyConversations)
		protected.GET("/conversations/:conversationId/order", middleware.UUIDValidator("conversationId"), orderHandler.GetConversationOrder)
		protected.GET("/conversations/:conversationId/messages", middleware.UUIDValidator("conversationId"), conversationHandler.ListMessages)
		protected.POST("/conversations/:conversationId/messages", middleware.UUIDValidator("conversationId"), conversationHandler.SendMessage)

		protected.GET("/wallet/balance", walletHandler.GetBalance)
		protected.POST("/wallet/topup", walletHandler.TopUp)
		protected.GET("/wallet/escrow/:orderId", middleware.UUIDValidator("orderId"), walletHandler.GetEscrow)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.GET("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.GetNotification)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.DELETE("/notifications/:id", middleware.UUIDValidator("id"), notificationHandler.DeleteNotification)

		protected.POST("/media/photos", mediaHandler.UploadPhoto)
		protected.DELETE("/media/:id", middleware.UUIDValidator("id"), mediaHandler.DeleteMedia)
	}

	return r
}
