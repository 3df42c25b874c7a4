package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/config"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/database"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/reminders"
	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dailydiary-api",
		Short: "Daily Diary backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newRemindCommand(), newOwnerCommand(), newStreakCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (defaults to ./.env)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database path or connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("calendar.timezone"), "IANA timezone that defines calendar days")
	cmd.PersistentFlags().Bool("reminders", defaults.GetBool("reminders.enabled"), "Run the daily reminder sweep")
	cmd.PersistentFlags().String("reminder-schedule", defaults.GetString("reminders.schedule"), "Cron schedule for the reminder sweep")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "calendar.timezone", "timezone")
	bindFlag(cmd, "reminders.enabled", "reminders")
	bindFlag(cmd, "reminders.schedule", "reminder-schedule")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		config.LoadDotEnv(envFile)
	} else {
		config.LoadDotEnv()
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// application holds the components shared by the server and the one-shot commands.
type application struct {
	config  config.AppConfig
	logger  *zap.Logger
	db      *gorm.DB
	diary   *diary.Service
	sweeper *reminders.Sweeper
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
		DefaultOwner: database.OwnerSeed{
			OwnerID: appConfig.DefaultOwnerID,
			Email:   appConfig.DefaultEmail,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	diaryService, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Location:   appConfig.Location,
		IDProvider: diary.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	sender, err := newReminderSender(appConfig, logger)
	if err != nil {
		return nil, err
	}

	sweeper, err := reminders.NewSweeper(reminders.SweeperConfig{
		Directory: diaryService,
		Sender:    sender,
		Clock:     time.Now,
		Location:  appConfig.Location,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:  appConfig,
		logger:  logger,
		db:      db,
		diary:   diaryService,
		sweeper: sweeper,
	}, nil
}

func newReminderSender(appConfig config.AppConfig, logger *zap.Logger) (reminders.Sender, error) {
	if !appConfig.Mailgun.Enabled() {
		logger.Info("mailgun not configured, reminders will be logged only")
		return reminders.LogSender{Logger: logger, AppURL: appConfig.ReminderAppURL}, nil
	}
	return reminders.NewMailgunSender(reminders.MailgunConfig{
		Domain:  appConfig.Mailgun.Domain,
		APIKey:  appConfig.Mailgun.APIKey,
		APIBase: appConfig.Mailgun.APIBase,
		Sender:  appConfig.Mailgun.Sender,
		AppURL:  appConfig.ReminderAppURL,
		Logger:  logger,
	})
}

func (a *application) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	handler, err := server.NewHTTPHandler(server.Dependencies{
		DiaryService: app.diary,
		Reminders:    app.sweeper,
		DefaultOwner: server.DefaultOwner{
			OwnerID: diary.OwnerID(app.config.DefaultOwnerID),
			Email:   app.config.DefaultEmail,
		},
		AllowedOrigins: app.config.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	var scheduler *reminders.Scheduler
	if app.config.RemindersEnabled {
		scheduler, err = reminders.NewScheduler(reminders.SchedulerConfig{
			Runner:   app.sweeper,
			Schedule: app.config.ReminderSchedule,
			Location: app.config.Location,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		logger.Info("next reminder sweep", zap.Time("at", scheduler.Next()))
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("reminder sweep did not finish before shutdown", zap.Error(err))
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func newRemindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Email every owner who has not written today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: sent %d reminder(s), %d failed, %d owner(s) checked\n",
				result.Day, result.Sent, result.Failed, result.Checked)
			return nil
		},
	}
}

func newOwnerCommand() *cobra.Command {
	ownerCmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage diary owners",
	}

	var ownerID, email string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register an owner or update their email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := diary.NewOwnerID(ownerID)
			if err != nil {
				return err
			}
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			profile, err := app.diary.RegisterOwner(cmd.Context(), id, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner %s <%s> registered\n", profile.OwnerID, profile.Email)
			return nil
		},
	}
	addCmd.Flags().StringVar(&ownerID, "id", "", "Owner identifier")
	addCmd.Flags().StringVar(&email, "email", "", "Reminder email address")
	_ = addCmd.MarkFlagRequired("id")
	_ = addCmd.MarkFlagRequired("email")

	ownerCmd.AddCommand(addCmd)
	return ownerCmd
}

func newStreakCommand() *cobra.Command {
	streakCmd := &cobra.Command{
		Use:   "streak",
		Short: "Inspect writing streaks",
	}

	var ownerID string
	recomputeCmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute and store an owner's streak from their full history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			raw := ownerID
			if raw == "" {
				raw = app.config.DefaultOwnerID
			}
			id, err := diary.NewOwnerID(raw)
			if err != nil {
				return err
			}
			state, err := app.diary.RecomputeStreak(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner %s: current streak %d, longest streak %d\n", id, state.Current, state.Longest)
			return nil
		},
	}
	recomputeCmd.Flags().StringVar(&ownerID, "owner", "", "Owner identifier (defaults to the configured default owner)")

	streakCmd.AddCommand(recomputeCmd)
	return streakCmd
}
