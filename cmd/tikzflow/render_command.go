package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tikzflow/internal/api"
	"tikzflow/internal/apiclient"
	"tikzflow/internal/stage"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string
	cmd := &cobra.Command{
		Use:   "render <file.tex|->",
		Short: "Render TikZ markup to PNG, PDF, or SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := stage.ParseFormat(format)
			if err != nil {
				return err
			}
			markup, err := readMarkup(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withAPI(func(client *apiclient.Client) error {
				resp, err := client.Render(cmd.Context(), api.RenderRequest{TikZCode: markup, Format: string(parsed)})
				if err != nil {
					return err
				}
				target := strings.TrimSpace(output)
				if target != "" {
					if err := downloadTo(cmd.Context(), client, resp.OutputURL, target); err != nil {
						return err
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rendered %s: %s%s\n", resp.Format, client.BaseURL(), resp.OutputURL)
				if resp.Placeholder {
					fmt.Fprintln(out, "LaTeX toolchain unavailable; a placeholder image was produced")
				}
				if target != "" {
					fmt.Fprintf(out, "Saved to %s\n", target)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "png", "Output format (png, pdf, svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also download the artifact to this path")
	return cmd
}

func readMarkup(cmd *cobra.Command, arg string) (string, error) {
	var data []byte
	var err error
	if strings.TrimSpace(arg) == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		var path string
		path, err = localFile(arg)
		if err == nil {
			data, err = os.ReadFile(path)
		}
	}
	if err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	markup := strings.TrimSpace(string(data))
	if markup == "" {
		return "", fmt.Errorf("read markup: input is empty")
	}
	return markup, nil
}
