package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors" // 引入 CORS 庫

	"batchchat/config"
	"batchchat/database"
	"batchchat/handlers"
	"batchchat/logger"
	"batchchat/middleware"
	"batchchat/websocket"
)

func main() {
	cfg := config.LoadConfig()
	l := logger.Init(cfg.Log)

	ctx := context.Background()
	store, membership, closers, err := openStorage(ctx, cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open message store")
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				l.Error().Err(err).Msg("Error closing storage")
			}
		}
	}()

	rooms := websocket.NewRegistry()
	relay := websocket.NewRelay(rooms, store, membership, cfg.PersistTimeout)

	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(l))

	// 健康檢查路由
	router.HandleFunc("/health", handlers.Health(rooms)).Methods("GET")
	// 歷史訊息 API 路由
	router.HandleFunc("/batches/{batchId}/messages", handlers.NewHistoryHandler(store).GetBatchMessages).Methods("GET")
	// WebSocket 路由，JWT_SECRET 有設定時才驗證 token
	router.Handle("/ws", middleware.JWTMiddleware(cfg.JWTSecret)(
		websocket.NewHandler(relay, cfg.WebSocket, cfg.AllowedOrigins),
	)).Methods("GET")

	// 實際生產環境中，應該將 ALLOWED_ORIGINS 限制為前端網域
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      c.Handler(router), // 將處理器替換為帶有 CORS 的 handler
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second, // 升級後的 WebSocket 連線由 write pump 自行設定 deadline
	}

	go func() {
		l.Info().Str("addr", serverAddr).Str("store", cfg.StoreDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// 如果錯誤不是因為主動關閉伺服器，就記錄錯誤並結束程式
			l.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	//當按下 Ctrl+C，程式會收到 SIGINT
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	l.Info().Str("signal", sig.String()).Msg("Shutting down server...")

	//最多等30秒關閉，避免資料損壞，請求中斷
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	l.Info().Msg("Server exited gracefully.")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStorage 依 STORE_DRIVER 建立 MessageStore，有設定 REDIS_ADDRESS 時再包上歷史訊息快取
func openStorage(ctx context.Context, cfg *config.Config) (database.MessageStore, database.MembershipChecker, []io.Closer, error) {
	var (
		store      database.MessageStore
		membership database.MembershipChecker
		closers    []io.Closer
	)

	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		db, err := database.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, db)
		store = database.NewBadgerMessageStore(db)
		if cfg.BatchMembershipCheck {
			l := logger.L()
			l.Warn().Msg("BATCH_MEMBERSHIP_CHECK requires the mongo store driver, membership is not checked")
		}
	default:
		mongoDB, err := database.ConnectMongoDB(ctx, cfg.MongoDBURI, cfg.DBName)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, closerFunc(func() error { mongoDB.Disconnect(); return nil }))

		mongoStore, err := database.NewMongoMessageStore(ctx, mongoDB.DB)
		if err != nil {
			mongoDB.Disconnect()
			return nil, nil, nil, err
		}
		store = mongoStore
		if cfg.BatchMembershipCheck {
			membership = database.NewMongoMembership(mongoDB.DB)
		}
	}

	if cfg.RedisAddress != "" {
		cache, err := database.NewRedisHistoryCache(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB, cfg.HistoryCachePrefix)
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
			return nil, nil, nil, err
		}
		closers = append(closers, cache)
		store = database.NewCachedStore(store, cache, cfg.HistoryCacheTTL)
	}

	return store, membership, closers, nil
}
