package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/handler"
	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), llmOptional)
		if err != nil {
			return err
		}
		defer a.close()

		if servePort != "" {
			a.cfg.Server.Port = servePort
		}
		if a.cfg.Server.AuthSecret == "" {
			a.logger.Warn("server.auth_secret not set, API is unauthenticated")
		}

		metrics.Init()

		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
		})

		handler.NewHandler(a.sentinel, a.repo, a.cfg, a.logger).RegisterRoutes(router)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%s", a.cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		a.logger.Info("Sentinel API is running",
			zap.String("address", srv.Addr),
			zap.Bool("auth", a.cfg.Server.AuthSecret != ""),
			zap.Bool("llm", a.adapter != nil))

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}

		a.logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		a.logger.Info("Server exited, waiting for running scans")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
