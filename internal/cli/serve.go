package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/api"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the board over HTTP",
	Long: "Starts the JSON API. Every committed change is handed to the fanout,\n" +
		"which publishes it on Redis when redis.url is configured.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default: http.listen from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fanout, cleanup, err := newFanout(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, api.HeaderMemberID},
	}))

	logger := log.StandardLogger()
	api.Register(e, newEngine(s), s, fanout, logger)

	listenAddr := cfg.HTTP.Listen
	if serveListen != "" {
		listenAddr = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("listen", listenAddr).Info("serving board api")
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errChan:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
