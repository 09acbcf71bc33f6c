package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/ai"
	appsvc "ragchat/internal/app"
	"ragchat/internal/bootstrap"
	"ragchat/internal/cache"
	"ragchat/internal/platform/rabbitmq"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
	"ragchat/internal/transport/http/handler"
	"ragchat/internal/transport/http/middleware"
	"ragchat/internal/usage"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	turnRepo := repository.NewTurnRepository(app.MySQL)
	optionsRepo := repository.NewOptionsRepository(app.MySQL)
	usageRepo := repository.NewUsageRepository(app.MySQL)
	knowledgeRepo := repository.NewKnowledgeRepository(app.MySQL)

	recorder := usage.NewRecorder(usageRepo)

	localCfg := ai.LocalConfig{
		BaseURL: app.Config.LLM.Local.BaseURL,
		Model:   app.Config.LLM.Local.Model,
	}
	openRouterCfg := ai.OpenRouterConfig{
		BaseURL:     app.Config.LLM.OpenRouter.BaseURL,
		APIKey:      app.Config.LLM.OpenRouter.APIKey,
		Model:       app.Config.LLM.OpenRouter.Model,
		HTTPReferer: app.Config.LLM.OpenRouter.HTTPReferer,
		XTitle:      app.Config.LLM.OpenRouter.XTitle,
	}

	registry := ai.NewRegistry()
	registry.Register(ai.ProviderLocal, func() (ai.Completer, error) {
		return ai.NewLocalProvider(localCfg, recorder), nil
	})
	registry.Register(ai.ProviderOpenRouter, func() (ai.Completer, error) {
		return ai.NewOpenRouterProvider(openRouterCfg, recorder)
	})

	embeddingClient := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL: app.Config.Embedding.BaseURL,
		APIKey:  app.Config.Embedding.APIKey,
		Model:   app.Config.Embedding.Model,
	})
	engines := rag.NewManager(registry, embeddingClient.EmbedBatch, knowledgeRepo, app.Config.RAG.TopK)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	turnPublisher := rabbitmq.NewTurnPublisher(app.MQConn, app.Config.RabbitMQ.TurnPersistQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	optionsService := appsvc.NewOptionsService(optionsRepo)
	historyProvider := appsvc.NewHistoryProvider(turnRepo)
	chatService := appsvc.NewChatService(
		sessionRepo,
		turnRepo,
		turnPublisher,
		historyCache,
		optionsService,
		historyProvider,
		engines,
	)
	knowledgeService := appsvc.NewKnowledgeService(engines, knowledgeRepo)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	optionsHandler := handler.NewOptionsHandler(optionsService)
	knowledgeHandler := handler.NewKnowledgeHandler(knowledgeService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:token", chatHandler.DeleteSession)
	chatGroup.POST("/sessions/:token/messages", chatHandler.SendTurn)
	chatGroup.GET("/sessions/:token/history", chatHandler.GetHistory)

	optionsGroup := v1.Group("/options")
	optionsGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	optionsGroup.GET("", optionsHandler.Get)
	optionsGroup.PUT("", optionsHandler.Update)

	knowledgeGroup := v1.Group("/knowledge")
	knowledgeGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	knowledgeGroup.POST("/documents", knowledgeHandler.InsertText)
	knowledgeGroup.POST("/documents/upload", knowledgeHandler.UploadPDF)
	knowledgeGroup.GET("/documents", knowledgeHandler.ListDocuments)

	return router
}
