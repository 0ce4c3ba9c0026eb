package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/bootstrap"
	"github.com/yigit/coursereg/internal/config"
)

var (
	// Global flags
	configPath  string
	backendMode string
	studentID   string
	logFile     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "regctl",
	Short: "Course registration client",
	Long: `regctl browses open courses and registers or cancels them for one student,
talking directly to the configured registration backend.

Backends: postgres, supabase, memory (the built-in ten-course catalog).
Run "regctl tui" for the interactive view with live enrollment counts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&backendMode, "backend", "b", "", "Backend mode: postgres, supabase or memory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&studentID, "student", "s", "", "Student id (default: auth.default_student_id)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config with flag overrides applied. Logs go to
// defaultLog unless --log-file is set.
func loadConfig(defaultLog io.Writer) (*config.Config, zerolog.Logger, func(), error) {
	out, closeLog := defaultLog, func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closeLog = f, func() { _ = f.Close() }
	}

	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(configPath, out)
	if err != nil {
		closeLog()
		return nil, zerolog.Logger{}, nil, err
	}
	if backendMode != "" {
		cfg.Backend.Mode = backendMode
		if err := cfg.Validate(); err != nil {
			closeLog()
			return nil, zerolog.Logger{}, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, lgr, closeLog, nil
}

// client is a session over the configured backend for the selected student.
type client struct {
	cfg     *config.Config
	logger  zerolog.Logger
	backend *bootstrap.Backend
	session *services.Session
	closeFn func()
}

func (c *client) Close() {
	c.session.Close()
	c.backend.Close()
	c.closeFn()
}

func openClient(logOut io.Writer, opts ...services.SessionOption) (*client, error) {
	cfg, lgr, closeLog, err := loadConfig(logOut)
	if err != nil {
		return nil, err
	}

	backend, err := bootstrap.SetupBackend(cfg, lgr, false)
	if err != nil {
		closeLog()
		return nil, err
	}

	id := studentID
	if id == "" {
		id = cfg.Auth.DefaultStudentID
	}
	opts = append([]services.SessionOption{
		services.WithMaxCourses(cfg.Registration.MaxCourses),
		services.WithLogger(lgr),
	}, opts...)

	return &client{
		cfg:     cfg,
		logger:  lgr,
		backend: backend,
		session: services.NewSession(backend.Store, id, opts...),
		closeFn: closeLog,
	}, nil
}
