package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/config"
	"code-quizzer/internal/identity"
	amqppub "code-quizzer/internal/infra/amqp"
	"code-quizzer/internal/metrics"
	transport "code-quizzer/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	exchange := cfg.AMQP.Exchange
	if exchange == "" {
		exchange = "code_quizzer.events"
	}
	publisher, err := amqppub.NewPublisher(cfg.AMQP.URL, exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	m := metrics.New()
	store := app.NewStore(b.docs)
	service := app.NewQuizService(store, b.bank, b.players, app.Options{
		Events:   publisher,
		Metrics:  m,
		Location: location,
	})

	idCfg := identity.Config{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: config.TTLDuration(cfg.Auth.TokenTTL, 72*time.Hour),
	}
	if g := cfg.Auth.Google; g.ClientID != "" {
		idCfg.Google = identity.NewGoogleConfig(g.ClientID, g.ClientSecret, g.RedirectURL)
	}
	id := identity.NewService(b.docs, idCfg)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	changes, cancelChanges := id.Changes()
	defer cancelChanges()
	go service.Watch(watchCtx, changes)

	api := transport.NewAPI(service, id, transport.APIOptions{
		Health:         store,
		Observer:       m,
		Metrics:        m.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting code-quizzer on :%s (store: %s)", finalPort, b.name)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
