package main

import (
	"log"

	"github.com/spf13/cobra"

	_ "github.com/girishdigge/graduate-voter-lokmangal-sub002/api/swagger"
)

// @title Graduate Voter Registration API
// @version 1.0.0
// @description Reference intake, WhatsApp notification and outreach administration
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var rootCmd = &cobra.Command{
	Use:          "voter-api",
	Short:        "Graduate voter registration reference service",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("voter-api: %v", err)
	}
}
