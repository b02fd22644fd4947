package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillforge/quillforge-server/internal/config"
	"github.com/quillforge/quillforge-server/internal/db"
	"github.com/quillforge/quillforge-server/internal/http/api/front"
	"github.com/quillforge/quillforge-server/internal/vault"

	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	encryptionKey, errKey := config.LoadEncryptionKey(configPath)
	if errKey != nil {
		return errKey
	}
	cipher, errCipher := vault.NewCipher(encryptionKey)
	if errCipher != nil {
		return errCipher
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return fmt.Errorf("app: missing jwt secret (set `jwt.secret` in config file or env %s)", config.EnvJWTSecret)
	}

	svc := vault.NewService(conn, cipher, vault.NewOpenRouterClient(""))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	front.RegisterFrontRoutes(engine, conn, jwtCfg, svc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	log.Infof("starting server on :%d with config=%s", port, cfg.ConfigPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case errServe := <-serveErr:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// requestLogger logs request outcomes through logrus.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}
