package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/database"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/infrastructure/server"
	"github.com/taskmaster/deptflow/internal/ports"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "development"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the DeptFlow API server",
		Long:  "Start the DeptFlow API server with the configured document store, change feed and routes",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the Postgres document table migrations (up, down, version)",
	}

	var steps int
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Run up migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("up", steps)
		},
	}
	upCmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 for all)")
	migrateCmd.AddCommand(upCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Run down migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("down", steps)
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to roll back (0 for all)")
	migrateCmd.AddCommand(downCmd)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Run: func(cmd *cobra.Command, args []string) {
			showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewUserCommand creates the user management command
func NewUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  "Create accounts with a profile directly in the document store",
	}

	createUserCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Run: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			email, _ := flags.GetString("email")
			password, _ := flags.GetString("password")
			firstName, _ := flags.GetString("first-name")
			lastName, _ := flags.GetString("last-name")
			role, _ := flags.GetString("role")
			department, _ := flags.GetString("department")
			verified, _ := flags.GetBool("verified")

			if email == "" || password == "" {
				log.Fatal("Email and password are required")
			}

			createUser(ports.RegisterRequest{
				Email:      email,
				Password:   password,
				FirstName:  firstName,
				LastName:   lastName,
				Role:       entities.UserRole(role),
				Department: department,
			}, verified)
		},
	}

	createUserCmd.Flags().String("email", "", "User email (required)")
	createUserCmd.Flags().String("password", "", "User password (required)")
	createUserCmd.Flags().String("first-name", "", "User first name")
	createUserCmd.Flags().String("last-name", "", "User last name")
	createUserCmd.Flags().String("role", string(entities.UserRoleTeamMember), "User role (manager, team-member)")
	createUserCmd.Flags().String("department", "", "Department the user belongs to")
	createUserCmd.Flags().Bool("verified", false, "Mark the email address as verified")

	userCmd.AddCommand(createUserCmd)
	return userCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print DeptFlow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("DeptFlow v%s\n", Version)
			fmt.Printf("Build Date: %s\n", BuildDate)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}

// app is the wired application shared by the serve and user commands.
type app struct {
	store    *database.Store
	resolver *services.SessionResolver
	services server.Services
	metrics  *server.Metrics
}

func buildApp(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*app, error) {
	store, err := database.OpenStore(ctx, cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	users := repository.NewUserRepository(store.Documents)
	accounts := repository.NewAccountRepository(store.Documents)
	tasks := repository.NewTaskRepository(store.Documents, appLogger)
	articles := repository.NewArticleRepository(store.Documents)

	oracle := services.NewTokenOracle(accounts, cfg.JWT, appLogger)
	resolver := services.NewSessionResolver(oracle, users, cfg.Store.Timeout, appLogger)
	validator := services.NewValidator()
	metrics := server.NewMetrics()

	return &app{
		store:    store,
		resolver: resolver,
		metrics:  metrics,
		services: server.Services{
			Auth:     services.NewAuthService(oracle, users, resolver, validator, appLogger),
			Users:    services.NewUserService(users, resolver, validator, appLogger),
			Tasks:    services.NewTaskService(tasks, store.Feed, validator, metrics, appLogger),
			Articles: services.NewArticleService(articles, validator, appLogger),
			Resolver: resolver,
		},
	}, nil
}

func loadConfigAndLogger() (*config.Config, *logger.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return cfg, appLogger
}

func runServer() {
	cfg, appLogger := loadConfigAndLogger()
	defer appLogger.Sync()

	application, err := buildApp(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize application", "error", err)
	}
	defer func() {
		if err := application.store.Close(); err != nil {
			appLogger.Errorw("Failed to close document store", "error", err)
		}
	}()

	application.resolver.Start()
	defer application.resolver.Stop()

	srv, err := server.New(cfg, application.services, application.store, application.metrics, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err)
	}

	go func() {
		appLogger.Infow("Starting DeptFlow API server",
			"port", cfg.Server.Port,
			"environment", cfg.App.Environment,
			"store", cfg.Store.Driver,
			"feed", cfg.Store.Feed,
		)

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Infow("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorw("Server forced to shutdown", "error", err)
		return
	}

	appLogger.Infow("Server exited gracefully")
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, func(), error) {
	db, err := database.New(cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.Postgres.MigrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, func() { db.Close() }, nil
}

func runMigration(direction string, steps int) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	m, closeDB, err := newMigrator(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeDB()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No migrations to run")
		return
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	fmt.Printf("Migration %s completed successfully\n", direction)
}

func showMigrationVersion() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	m, closeDB, err := newMigrator(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeDB()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("No migrations applied")
		return
	}
	if err != nil {
		log.Fatalf("Failed to get migration version: %v", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
}

func createUser(req ports.RegisterRequest, verified bool) {
	cfg, appLogger := loadConfigAndLogger()
	defer appLogger.Sync()

	ctx := context.Background()
	application, err := buildApp(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.store.Close()

	result, err := application.services.Auth.Register(ctx, req)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	if verified {
		if err := application.services.Auth.VerifyEmail(ctx, ports.VerifyEmailRequest{Token: result.VerificationToken}); err != nil {
			log.Fatalf("Failed to verify email: %v", err)
		}
	}

	fmt.Printf("User created successfully:\n")
	fmt.Printf("  ID: %s\n", result.User.ID)
	fmt.Printf("  Email: %s\n", result.User.Email)
	fmt.Printf("  Name: %s\n", result.User.DisplayName())
	fmt.Printf("  Role: %s\n", result.User.Role)
	fmt.Printf("  Department: %s\n", result.User.Department)
	fmt.Printf("  Verified: %t\n", verified)
	if !verified {
		fmt.Printf("  Verification token: %s\n", result.VerificationToken)
	}
}
