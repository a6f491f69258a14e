package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/service"
)

func newTemplateCmd() *cobra.Command {
	var (
		targetType string
		format     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Render an import template (csv or xlsx)",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseTargetType(targetType)
			if err != nil {
				return fmt.Errorf("invalid --type: %w", err)
			}

			templates := service.NewTemplateService()
			var data []byte
			switch strings.ToLower(format) {
			case "csv":
				data, err = templates.RenderCSV(target)
			case "xlsx":
				if out == "" {
					return fmt.Errorf("--out is required for xlsx")
				}
				data, err = templates.RenderXLSX(target)
			default:
				return fmt.Errorf("invalid --format %q: use csv or xlsx", format)
			}
			if err != nil {
				return err
			}
			return writeOutput(out, data)
		},
	}

	cmd.Flags().StringVar(&targetType, "type", "", "departments or positions (required)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "Output file (stdout when empty)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
