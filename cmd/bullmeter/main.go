package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"bullmeter/internal/app"
	"bullmeter/internal/auth"
	"bullmeter/internal/config"
	"bullmeter/internal/logger"
)

type options struct {
	configPath string
	issueToken string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		logger.New("error").Fatalf("%v", err)
	}
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("bullmeter", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", os.Getenv("BULLMETER_CONFIG_FILE"), "path to a JSON or YAML config file")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print a signed host token for the given host id and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithPrecedence(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.issueToken != "" {
		return issueToken(cfg, opts.issueToken, stdout)
	}

	log := logger.New(cfg.Log.Level)
	switch log.Level() {
	case "trace", "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Infof("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}

func issueToken(cfg *config.Config, hostID string, stdout io.Writer) error {
	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	token, err := authenticator.GenerateToken(hostID)
	if err != nil {
		return fmt.Errorf("failed to issue token (is BULLMETER_JWT_SECRET set?): %w", err)
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
