package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mariocelzo/Target-sub000/internal/api/handlers"
	"github.com/mariocelzo/Target-sub000/internal/api/middleware"
	"github.com/mariocelzo/Target-sub000/internal/config"
	"github.com/mariocelzo/Target-sub000/internal/feed"
	"github.com/mariocelzo/Target-sub000/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, queue services.ITaskQueue, f feed.Feed) *gin.Engine {
	// Initialize services needed by API handlers HERE
	userService := services.NewUserService(db)
	offerService := services.NewOfferService(db, queue)
	listingService := services.NewListingService(db, cfg, userService, queue)
	chatService := services.NewChatService(db)

	r := gin.Default()

	// Initialize Middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	restListingHandler := handlers.NewRestListingHandler(listingService, offerService)
	restOfferHandler := handlers.NewRestOfferHandler(offerService, listingService)
	restChatHandler := handlers.NewRestChatHandler(chatService)
	wsHandler := handlers.NewWsHandler(cfg, listingService, offerService, chatService, f)

	v1 := r.Group("/v1")
	{
		// Public Routes (Rate limiting already applied globally)
		v1.GET("/listing/:id", restListingHandler.GetListingByID)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated Routes (already have rate limiting from global middleware)
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/listing", restListingHandler.CreateListing)
			authRequired.DELETE("/listing/:id", restListingHandler.RemoveListing)
			authRequired.POST("/listing/:id/accept", restListingHandler.AcceptOffer)

			authRequired.POST("/listing/:id/offer", restOfferHandler.SubmitOffer)
			authRequired.DELETE("/listing/:id/offer", restOfferHandler.WithdrawOffer)
			authRequired.GET("/listing/:id/offer", restOfferHandler.ListOffers)

			authRequired.GET("/order/:id", restListingHandler.GetOrderByID)

			authRequired.POST("/thread", restChatHandler.OpenThread)
			authRequired.GET("/thread", restChatHandler.ListThreads)
			authRequired.POST("/thread/:id/message", restChatHandler.SendMessage)

			authRequired.GET("/thread/:id/ws", wsHandler.ThreadWS)
			authRequired.GET("/dashboard/ws", wsHandler.DashboardWS)
		}
	}

	return r
}
