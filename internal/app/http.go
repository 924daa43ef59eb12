package app

import (
	"context"

	"token-service/internal/auth/cipher"
	"token-service/internal/auth/flow"
	"token-service/internal/auth/handler"
	"token-service/internal/auth/provider/msgraph"
	"token-service/internal/auth/token"
	"token-service/internal/config"
	"token-service/internal/middleware"
	"token-service/internal/session"
	"token-service/internal/tokenstore"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	tokenCipher, err := cipher.NewSecretBox(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	tokenStore := tokenstore.NewPostgresStore(infra.DB)

	graphProvider, err := msgraph.New(
		ctx,
		cfg.GraphAuthority,
		cfg.GraphClientID,
		cfg.GraphClientSecret,
		cfg.GraphRedirectURL,
		cfg.GraphScopes,
	)
	if err != nil {
		return nil, nil, err
	}

	flowController := flow.NewController(
		graphProvider,
		sessionStore,
		tokenStore,
		tokenCipher,
		cfg.GraphScopes,
	)

	engine := token.NewEngine(tokenStore, tokenCipher, graphProvider)

	authHandler := handler.NewHandler(flowController, engine, tokenStore)

	serviceAuth := middleware.NewAuthMiddleware(cfg.ServiceAPIKey)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router, middleware.GinRequireAuth(serviceAuth))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.DB.Close()
	}, nil
}
