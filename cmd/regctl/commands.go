package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yigit/coursereg/internal/app/models"
	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/bootstrap"
	"github.com/yigit/coursereg/internal/config"
)

// coursesCmd lists the open courses
var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List open courses with enrollment counts",
	Args:  cobra.NoArgs,
	RunE:  runCourses,
}

// statusCmd shows the student's registered courses
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered courses and total credits",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// registerCmd registers a course
var registerCmd = &cobra.Command{
	Use:   "register <courseID>",
	Short: "Register a course",
	Long: `Register a course for the student.

The request is rejected locally when the student already has the maximum number
of courses, is already registered for the course, or the course is full.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

// cancelCmd cancels a registered course
var cancelCmd = &cobra.Command{
	Use:   "cancel <courseID>",
	Short: "Cancel a registered course",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

// tokenCmd mints a student token for the HTTP API
var tokenCmd = &cobra.Command{
	Use:   "token <studentID>",
	Short: "Print an API access token for a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

// migrateCmd prepares a postgres database
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and seed the course catalog (postgres only)",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

// loadedClient opens a client and loads both collections once.
func loadedClient(cmd *cobra.Command) (*client, error) {
	c, err := openClient(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if err := c.session.Load(cmd.Context()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func runCourses(cmd *cobra.Command, args []string) error {
	c, err := loadedClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	snap := c.session.Snapshot()
	printCourses(cmd.OutOrStdout(), snap.Available, true)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := loadedClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	printStatus(cmd.OutOrStdout(), c.session.Snapshot())
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	c, err := loadedClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	course, err := c.session.Register(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("registration of %s failed: %w", args[0], err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registered %s %s (%d/%d)\n", course.ID, course.Name, course.Enrolled, course.Capacity)
	printStatus(out, c.session.Snapshot())
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	c, err := loadedClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.session.Cancel(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("cancellation of %s failed: %w", args[0], err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cancelled %s\n", args[0])
	printStatus(out, c.session.Snapshot())
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, closeLog, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	token, expiresIn, err := bootstrap.NewJWTService(cfg).GenerateToken(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, lgr, closeLog, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Backend.Mode != config.BackendPostgres {
		return fmt.Errorf("migrate needs the %s backend, got %q", config.BackendPostgres, cfg.Backend.Mode)
	}
	database, err := bootstrap.SetupDatabase(cfg, lgr, false)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := bootstrap.MigrateAndSeed(cmd.Context(), database, lgr); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
	return nil
}

func printCourses(out io.Writer, courses []models.Course, seats bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if seats {
		fmt.Fprintln(w, "ID\tNAME\tPROFESSOR\tCREDITS\tTIME\tENROLLED\t")
	} else {
		fmt.Fprintln(w, "ID\tNAME\tPROFESSOR\tCREDITS\tTIME\t")
	}
	for _, c := range courses {
		if seats {
			full := ""
			if c.IsFull() {
				full = " full"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d/%d%s\t\n", c.ID, c.Name, c.Professor, c.Credits, c.Time, c.Enrolled, c.Capacity, full)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t\n", c.ID, c.Name, c.Professor, c.Credits, c.Time)
	}
}

func printStatus(out io.Writer, snap services.Snapshot) {
	fmt.Fprintf(out, "Student %s: %d/%d courses, %d credits\n",
		snap.StudentID, len(snap.Registered), snap.MaxCourses, snap.TotalCredits)
	if len(snap.Registered) > 0 {
		printCourses(out, snap.Registered, false)
	}
}
