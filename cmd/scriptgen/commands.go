package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/K-Arthur/script-generator/task"
)

type submitResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
}

type statusResponse struct {
	TaskID     string          `json:"task_id"`
	Status     task.Status     `json:"status"`
	Script     string          `json:"script,omitempty"`
	Validation json.RawMessage `json:"validation,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func newSubmitCommand(root *rootOptions) *cobra.Command {
	var (
		templateName  string
		concept       string
		previousTopic string
		wait          bool
		interval      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Submit source material for script generation",
		Long: `Submit a source document for script generation.

Pass "-" to read the content from stdin. With --wait the command polls
the task until it finishes and prints the generated script.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			c := root.client()
			ctx := commandContext(cmd)

			var sub submitResponse
			err = c.postJSON(ctx, "/generate-script", map[string]string{
				"content":             string(content),
				"template_name":       templateName,
				"highlighted_concept": concept,
				"previous_topic":      previousTopic,
			}, &sub)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			if !wait {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sub.TaskID, sub.Status)
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "task %s submitted, waiting...\n", sub.TaskID)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				var st statusResponse
				if err := c.get(ctx, "/script-status/"+url.PathEscape(sub.TaskID), &st); err != nil {
					return fmt.Errorf("poll status: %w", err)
				}
				switch st.Status {
				case task.StatusCompleted:
					fmt.Fprintln(cmd.OutOrStdout(), st.Script)
					return nil
				case task.StatusFailed:
					return fmt.Errorf("task %s failed: %s", st.TaskID, st.Error)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name to structure the script")
	cmd.Flags().StringVar(&concept, "concept", "", "Concept to highlight")
	cmd.Flags().StringVar(&previousTopic, "previous-topic", "", "Topic of the preceding episode")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish and print the script")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval used with --wait")
	return cmd
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's status and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st statusResponse
			if err := root.client().get(commandContext(cmd), "/script-status/"+url.PathEscape(args[0]), &st); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newTasksCommand(root *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			path := "/tasks"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var tasks []struct {
				TaskID       string      `json:"task_id"`
				Status       task.Status `json:"status"`
				TemplateName string      `json:"template_name"`
				CreatedAt    time.Time   `json:"created_at"`
			}
			if err := root.client().get(commandContext(cmd), path, &tasks); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-10s  %-14s  %s\n", "ID", "STATUS", "TEMPLATE", "CREATED")
			for _, t := range tasks {
				tmpl := t.TemplateName
				if tmpl == "" {
					tmpl = "-"
				}
				fmt.Fprintf(out, "%-36s  %-10s  %-14s  %s\n", t.TaskID, t.Status, tmpl, t.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks to list")
	return cmd
}

func newCancelCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.client().postJSON(commandContext(cmd), "/tasks/"+url.PathEscape(args[0])+"/cancel", struct{}{}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}
}

func newTemplatesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List available script templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tmpls map[string]json.RawMessage
			if err := root.client().get(commandContext(cmd), "/templates", &tmpls); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tmpls)
		},
	}
}

func newValidateCommand(root *rootOptions) *cobra.Command {
	var templateName string
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Score a script's readability and template compliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var report json.RawMessage
			err = root.client().postJSON(commandContext(cmd), "/validate-script", map[string]string{
				"script":        string(script),
				"template_name": templateName,
			}, &report)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template to check section word counts against")
	return cmd
}

func newExportCommand(root *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Render a script as txt, html or md",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			body, _, err := root.client().postRaw(commandContext(cmd), "/export-script", map[string]string{
				"script": string(script),
				"format": format,
			})
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "txt", "Export format (txt, html, md)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newUploadCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and print its extracted text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var resp struct {
				Filename string `json:"filename"`
				Content  string `json:"content"`
			}
			if err := root.client().upload(commandContext(cmd), "/upload-file", args[0], data, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			return nil
		},
	}
}
