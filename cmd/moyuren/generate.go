package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	template, _ := cmd.Flags().GetString("template")
	filename, err := a.Orchestrator.Generate(cmd.Context(), template)
	if err != nil {
		return err
	}
	fmt.Println(filename)
	return nil
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if days, _ := cmd.Flags().GetInt("retain-days"); days > 0 {
		a.Config.Cache.RetainDays = days
	}
	a.Cleanup()
	return nil
}
