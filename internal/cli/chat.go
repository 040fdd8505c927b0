package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	"github.com/jansunwai/assistant/internal/observability"
	"github.com/jansunwai/assistant/internal/service/chat"
	"github.com/jansunwai/assistant/internal/service/geo"
	"github.com/jansunwai/assistant/internal/service/intake"
)

var (
	chatLat      float64
	chatLng      float64
	chatAccuracy float64
	chatClientID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat session in the terminal",
	Long: `Open a chat session against the intake backend and talk to it from the
terminal. Location is taken from --lat/--lng, or from GEO_STATIC_* when
enabled. Without either, location requests are reported as denied.

Examples:
  intakectl chat --token "$TOKEN"
  intakectl chat --lat 23.2599 --lng 77.4126 --log-file chat.log`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Float64Var(&chatLat, "lat", 0, "latitude reported for location requests")
	chatCmd.Flags().Float64Var(&chatLng, "lng", 0, "longitude reported for location requests")
	chatCmd.Flags().Float64Var(&chatAccuracy, "accuracy", 25, "accuracy in meters reported with --lat/--lng")
	chatCmd.Flags().StringVar(&chatClientID, "client-id", "", "client id of the session")
}

func runChat(cmd *cobra.Command, _ []string) error {
	logger, err := observability.NewFileLogger(cfg.Log, logFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	client, err := intake.NewClient(cfg.Backend.IntakeURL, cfg.Backend.IntakeTimeout, logger)
	if err != nil {
		return fmt.Errorf("create intake client: %w", err)
	}

	locator := geo.NewHelper(chatLocation(cmd), geomodel.Options{
		HighAccuracy: true,
		Timeout:      cfg.Geo.Timeout,
		MaximumAge:   cfg.Geo.MaximumAge,
	}, logger.Named("geo"))

	svc := chat.NewService(chat.Config{
		Timing: chat.Timing{
			EnterDelay:    cfg.Chat.EnterDelay,
			ExitDelay:     cfg.Chat.ExitDelay,
			ImageAckDelay: cfg.Chat.ImageAckDelay,
			SlowNotice:    cfg.Backend.SlowNotice,
			MaxImageBytes: cfg.Chat.MaxImageBytes,
		},
		Intake:   client,
		Locators: func(string) chat.Locator { return locator },
		Logger:   logger,
	})

	ctx := cmd.Context()
	session, err := svc.Open(ctx, chatClientID, credentials())
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	w := newWidget(ctx, session, events, session.State(), session.Messages())
	if _, err := tea.NewProgram(w, tea.WithContext(ctx)).Run(); err != nil {
		logger.Warn("widget stopped", zap.Error(err))
	}

	session.Close()
	session.Wait()
	return nil
}

func chatLocation(cmd *cobra.Command) geo.Provider {
	switch {
	case cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng"):
		return geo.StaticProvider{Latitude: chatLat, Longitude: chatLng, Accuracy: chatAccuracy}
	case cfg.Geo.StaticEnabled:
		return geo.StaticProvider{Latitude: cfg.Geo.StaticLat, Longitude: cfg.Geo.StaticLng, Accuracy: cfg.Geo.StaticAcc}
	default:
		return geo.DeniedProvider{}
	}
}
