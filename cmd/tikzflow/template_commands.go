package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tikzflow/internal/apiclient"
	"tikzflow/internal/diagram"
	"tikzflow/internal/ipc"
	"tikzflow/internal/templates"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Browse and reload the TikZ template catalog",
	}
	templatesCmd.AddCommand(newTemplatesListCommand(ctx))
	templatesCmd.AddCommand(newTemplatesShowCommand(ctx))
	templatesCmd.AddCommand(newTemplatesReloadCommand(ctx))
	return templatesCmd
}

func newTemplatesListCommand(ctx *commandContext) *cobra.Command {
	var diagramType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(diagramType) != "" {
				if _, err := diagram.ParseType(diagramType); err != nil {
					return err
				}
			}
			return ctx.withAPI(func(client *apiclient.Client) error {
				list, err := client.Templates(cmd.Context(), diagramType)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if list == nil {
						list = []templates.Template{}
					}
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No templates")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, tpl := range list {
					rows = append(rows, []string{tpl.ID, tpl.DiagramType.Title(), tpl.Name, tpl.Description})
				}
				fmt.Fprint(out, renderTable([]column{col("ID"), col("Type"), col("Name"), col("Description").wrap(48)}, rows))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&diagramType, "type", "t", "", "Only list templates for this diagram type")
	return cmd
}

func newTemplatesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template and its TikZ code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAPI(func(client *apiclient.Client) error {
				tpl, err := client.Template(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, tpl)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", tpl.Name, tpl.DiagramType)
				if tpl.Description != "" {
					fmt.Fprintln(out, tpl.Description)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.TrimSpace(tpl.TikZCode))
				return nil
			})
		},
	}
}

func newTemplatesReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the template catalog file in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReloadTemplates()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Template catalog reloaded (%d templates)\n", resp.Templates)
				return nil
			})
		},
	}
}
