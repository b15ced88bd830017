package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "meishi",
		Short: "Business card intake and processing service",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
