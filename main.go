package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"watchpartygo/internal/auth"
	"watchpartygo/internal/config"
	"watchpartygo/internal/database/db_client"
	"watchpartygo/internal/http/http_server"
	"watchpartygo/internal/livesync"
	"watchpartygo/internal/redis/redis_client"
	"watchpartygo/internal/services/room"
	"watchpartygo/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

//	@title						Watch Party API
//	@version					1.0
//	@description				Rooms, chat history and live playback state for synchronized video sessions.
//	@BasePath					/api
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the JWT.
func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded",
		zap.Uint16("port", cfg.HttpServerPort),
		zap.Int("chatHistory", cfg.ChatHistoryLimit),
		zap.Duration("liveSync", cfg.LiveSyncInterval),
	)

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis live-state mirror
	redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. Postgres for room records and chat persistence
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := db_client.Migrate(ctx, pgDb); err != nil {
		Log.Fatal("pg-migrate", zap.Error(err))
	}

	roomService := room.NewRoomService(pgDb)
	verifier := auth.NewVerifier(cfg.JwtSecret, cfg.JwtIssuer)

	// 5. Real-time hub and its websocket front
	hub := ws.NewHub(cfg.ChatHistoryLimit)
	wsSrv := ws.NewWsServer(hub, verifier, ws.Options{
		MaxMessageBytes: cfg.WsMaxMessageBytes,
		SendBuffer:      cfg.WsSendBuffer,
		ReportErrors:    cfg.WsReportErrors,
	})

	// 6. Background: periodic snapshot of live rooms into Redis
	mirror := livesync.NewMirror(redisClient, hub, cfg.LiveSyncTTL)
	mirror.Run(ctx, cfg.LiveSyncInterval)

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, roomService, mirror, verifier)
	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()

	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("shutdown complete")
}
