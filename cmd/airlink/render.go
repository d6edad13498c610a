package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mbocsi/airlink/services"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

type renderFlags struct {
	SVG   string
	PNG   string
	Scale int
}

func newRenderCmd(a *app) *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render <text>",
		Short: "Draw text as a QR code in the terminal or to an SVG/PNG file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			render := services.NewRenderService()

			if f.SVG == "" && f.PNG == "" {
				qrterminal.GenerateHalfBlock(text, qrterminal.L, cmd.OutOrStdout())
				return nil
			}
			if f.SVG != "" {
				svg, err := render.RenderSVG(text, f.Scale)
				if err != nil {
					return err
				}
				if err := os.WriteFile(f.SVG, svg, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.SVG)
			}
			if f.PNG != "" {
				png, err := render.RenderPNG(text)
				if err != nil {
					return err
				}
				if err := os.WriteFile(f.PNG, png, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.PNG)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.SVG, "svg", "", "write an SVG file")
	cmd.Flags().StringVar(&f.PNG, "png", "", "write a PNG file")
	cmd.Flags().IntVar(&f.Scale, "scale", 4, "SVG pixels per module")
	return cmd
}
