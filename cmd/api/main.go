package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/deptflow/cmd/api/commands"
)

// @title DeptFlow API
// @version 1.0
// @description Department task board: identity and session resolution, route access gate and the task workflow engine
// @termsOfService https://github.com/taskmaster/deptflow/blob/main/LICENSE

// @contact.name DeptFlow Support
// @contact.url https://github.com/taskmaster/deptflow

// @license.name MIT
// @license.url https://github.com/taskmaster/deptflow/blob/main/LICENSE

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "deptflow",
		Short: "DeptFlow API Server",
		Long:  `DeptFlow is a department task board where managers assign work and team members move it through todo, in-progress and done.`,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewUserCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
