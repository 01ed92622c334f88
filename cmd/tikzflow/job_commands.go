package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tikzflow/internal/api"
	"tikzflow/internal/apiclient"
	"tikzflow/internal/config"
	"tikzflow/internal/jobs"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newUploadCommand(ctx),
		newConvertCommand(ctx),
		newJobCommand(ctx),
		newJobsCommand(ctx),
		newExportCommand(ctx),
		newReportCommand(ctx),
	}
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload a diagram image to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := localFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withAPI(func(client *apiclient.Client) error {
				resp, err := client.Upload(cmd.Context(), path)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Uploaded %s\n", filepath.Base(path))
				fmt.Fprintf(out, "Image ID: %s\n", resp.ID)
				return nil
			})
		},
	}
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var diagramType string
	var hint string
	var templateID string
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "convert <image-id|image-file>",
		Short: "Start a TikZ conversion",
		Long: "Start a conversion for an uploaded image. When the argument names a local\n" +
			"file it is uploaded first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAPI(func(client *apiclient.Client) error {
				imageID, err := resolveImageID(cmd.Context(), client, args[0])
				if err != nil {
					return err
				}
				job, err := client.Convert(cmd.Context(), api.ConvertRequest{
					ImageID:     imageID,
					DiagramType: strings.ToLower(strings.TrimSpace(diagramType)),
					Description: hint,
					TemplateID:  templateID,
				})
				if err != nil {
					return err
				}
				if wait {
					waitCtx := cmd.Context()
					if timeout > 0 {
						var cancel context.CancelFunc
						waitCtx, cancel = context.WithTimeout(waitCtx, timeout)
						defer cancel()
					}
					job, err = client.WaitJob(waitCtx, job.ID, 250*time.Millisecond)
					if err != nil {
						return err
					}
				}
				return printJob(cmd, ctx, job)
			})
		},
	}
	cmd.Flags().StringVarP(&diagramType, "type", "t", "", "Diagram type (mechanics, electricity, optics, thermodynamics, quantum, general)")
	cmd.Flags().StringVar(&hint, "hint", "", "Free-text description passed to the converter")
	cmd.Flags().StringVar(&templateID, "template", "", "Catalog template id for the template provider")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait with --wait")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show a conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAPI(func(client *apiclient.Client) error {
				job, err := client.Job(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				return printJob(cmd, ctx, job)
			})
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List conversion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range statuses {
				if _, ok := jobs.ParseStatus(raw); !ok {
					return fmt.Errorf("unknown job status %q", raw)
				}
			}
			return ctx.withAPI(func(client *apiclient.Client) error {
				list, err := client.Jobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.JobListResponse{Jobs: list})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						job.ID,
						statusLabel(job.Status),
						job.DiagramType,
						yesNo(job.HasPreview),
						shortTime(job.UpdatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]column{col("ID"), col("Status"), col("Type"), col("Preview"), col("Updated").right()},
					rows,
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var includeCode bool
	var title string
	var output string
	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Export a completed job as a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAPI(func(client *apiclient.Client) error {
				resp, err := client.Export(cmd.Context(), strings.TrimSpace(args[0]), includeCode, title)
				if err != nil {
					return err
				}
				target := strings.TrimSpace(output)
				if target != "" {
					if err := downloadTo(cmd.Context(), client, resp.PDFURL, target); err != nil {
						return err
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"pdf_url":  resp.PDFURL,
						"filename": resp.Filename,
						"saved_to": target,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exported %s\n", resp.Filename)
				fmt.Fprintf(out, "Download: %s%s\n", client.BaseURL(), resp.PDFURL)
				if target != "" {
					fmt.Fprintf(out, "Saved to %s\n", target)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeCode, "include-code", false, "Append the TikZ source to the PDF")
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to export.default_title)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also download the PDF to this path")
	return cmd
}

func newReportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Download the job report spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(output)
			if target == "" {
				target = "tikzflow-jobs.xlsx"
			}
			return ctx.withAPI(func(client *apiclient.Client) error {
				if err := downloadTo(cmd.Context(), client, "/api/jobs/report.xlsx", target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote job report to %s\n", target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default tikzflow-jobs.xlsx)")
	return cmd
}

func printJob(cmd *cobra.Command, ctx *commandContext, job api.Job) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, job)
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Job "+job.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), statusLabel(job.Status), colorize))
	if job.DiagramType != "" {
		fmt.Fprintln(out, renderStatusLine("Type", statusInfo, job.DiagramType, colorize))
	}
	if job.TemplateID != "" {
		fmt.Fprintln(out, renderStatusLine("Template", statusInfo, job.TemplateID, colorize))
	}
	if job.PreviewURL != "" {
		fmt.Fprintln(out, renderStatusLine("Preview", statusInfo, job.PreviewURL, colorize))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.ErrorMessage, colorize))
	}
	if code := strings.TrimSpace(job.TikZCode); code != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, code)
	}
	return nil
}

// resolveImageID uploads arg first when it names an existing local file.
func resolveImageID(ctx context.Context, client *apiclient.Client, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("image id or file is required")
	}
	path, err := config.ExpandPath(arg)
	if err != nil {
		return arg, nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return arg, nil
	}
	resp, err := client.Upload(ctx, path)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func localFile(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

func downloadTo(ctx context.Context, client *apiclient.Client, urlPath, target string) error {
	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if err := client.Download(ctx, urlPath, file); err != nil {
		file.Close()
		_ = os.Remove(target)
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

func shortTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
