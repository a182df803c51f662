package routes

import (
	"context"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/config"
	"github.com/saeid-a/SigmaChatSync/internal/handlers"
	"github.com/saeid-a/SigmaChatSync/internal/middleware"
	"github.com/saeid-a/SigmaChatSync/internal/notify"
	"github.com/saeid-a/SigmaChatSync/internal/preferences"
	"github.com/saeid-a/SigmaChatSync/internal/push"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
	"github.com/saeid-a/SigmaChatSync/internal/repository"
	"github.com/saeid-a/SigmaChatSync/internal/services"
	chatws "github.com/saeid-a/SigmaChatSync/internal/websocket"
)

const pushSecretHeader = "X-Push-Secret"

// Dependencies are the long-lived resources owned by main.
type Dependencies struct {
	Ctx     context.Context
	Config  *config.Config
	DB      *pgxpool.Pool
	Prefs   *preferences.Store
	Hub     *chatws.Hub
	Surface *notify.RedisSurface
	Tasks   queue.Client
	Log     zerolog.Logger
}

func RegisterRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	userRepo := repository.NewUserRepository(deps.DB)
	conversationRepo := repository.NewConversationRepository(deps.DB)
	feed := repository.NewConversationFeed(deps.DB, cfg.ListenMaxConns, deps.Log)

	var avatars services.AvatarArchive
	if cfg.StorageEnabled() {
		avatars = services.NewSupabaseArchive(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	var pusher *push.FCMClient
	if cfg.PushEnabled() {
		pusher = push.NewFCMClient(cfg.FCMURL, cfg.FCMServerKey)
	}

	var registrar *services.TokenRegistrar
	if cfg.PushRelayURL != "" {
		tokens := push.NewTokenSource(cfg.PushRelayURL, deps.Prefs.DeviceID)
		registrar = services.NewTokenRegistrar(tokens, deps.Prefs, userRepo, deps.Hub, deps.Log)
	} else {
		deps.Log.Warn().Msg("PUSH_RELAY_URL not set, push tokens will not be registered")
	}

	accountService := services.NewAccountService(userRepo, deps.Prefs, avatars, cfg.JWTSecret, deps.Log)
	conversationService := services.NewConversationService(conversationRepo, userRepo, optionalPusher(pusher), deps.Log)

	authHandler := handlers.NewAuthHandler(accountService)
	accountHandler := handlers.NewAccountHandler(accountService, signOutFor(registrar, deps.Prefs, userRepo, deps.Hub, deps.Log))
	chatHandler := handlers.NewChatHandler(deps.Ctx, conversationService, feed, optionalRegistrar(registrar), deps.Hub, cfg.JWTSecret, deps.Log)
	pushHandler := handlers.NewPushHandler(deps.Tasks, cfg.PushQueue, deps.Surface)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/signup", authHandler.SignUp)
	auth.Post("/signin", authHandler.SignIn)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	// Registered ahead of the /v1 group so they bypass its bearer check.
	api.Post("/v1/push", middleware.RequireSharedSecret(pushSecretHeader, cfg.PushWebhookSecret), pushHandler.Receive)
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	authProtected.Get("/me/details", accountHandler.Details)
	authProtected.Post("/signout", accountHandler.SignOut)
	authProtected.Get("/notifications", pushHandler.ListNotifications)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("/:counterpartId/messages", chatHandler.SendMessage)
}

// optionalPusher keeps a nil *FCMClient from turning into a non-nil
// interface value.
func optionalPusher(pusher *push.FCMClient) interface {
	Send(ctx context.Context, tokens []string, data map[string]string) error
} {
	if pusher == nil {
		return nil
	}
	return pusher
}

func optionalRegistrar(registrar *services.TokenRegistrar) interface {
	RegisterTokenAsync(ctx context.Context, userID string)
} {
	if registrar == nil {
		return nil
	}
	return registrar
}

// signOutFor still signs out without a relay; only token fetching needs it.
func signOutFor(
	registrar *services.TokenRegistrar,
	prefs *preferences.Store,
	users *repository.UserRepository,
	hub *chatws.Hub,
	log zerolog.Logger,
) *services.TokenRegistrar {
	if registrar != nil {
		return registrar
	}
	return services.NewTokenRegistrar(nil, prefs, users, hub, log)
}
