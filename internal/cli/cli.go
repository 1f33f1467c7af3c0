// Package cli implements remindctl, the operator command line for the reminder
// server. Every command is a thin HTTP call against the server's API:
//
//	remindctl trigger <job> [--async]   # POST /cron/trigger
//	remindctl preview [--date]          # GET  /cron/preview
//	remindctl schedule                  # GET  /cron/schedule
//	remindctl history [--limit]         # GET  /sms/history
//	remindctl clear <id>                # DELETE /sms/history/{id}
//	remindctl runs [--limit]            # GET  /jobs/runs
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/smsleopard-reminders/internal/service"
)

const defaultServer = "http://localhost:8080"

type client struct {
	base string
	http *http.Client
	out  io.Writer
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	c := &client{http: &http.Client{Timeout: 5 * time.Minute}}

	rootCmd := &cobra.Command{
		Use:           "remindctl",
		Short:         "Operate the SMS reminder scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.out = cmd.OutOrStdout()
		},
	}

	server := os.Getenv("REMINDCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	rootCmd.PersistentFlags().StringVarP(&c.base, "server", "s", server, "reminder server base URL")

	rootCmd.AddCommand(
		buildTriggerCommand(c),
		buildPreviewCommand(c),
		buildScheduleCommand(c),
		buildHistoryCommand(c),
		buildClearCommand(c),
		buildRunsCommand(c),
	)
	return rootCmd
}

func buildTriggerCommand(c *client) *cobra.Command {
	var async bool

	jobs := make([]string, 0, len(service.Jobs))
	for _, j := range service.Jobs {
		jobs = append(jobs, string(j))
	}

	cmd := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Run a job now (" + strings.Join(jobs, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := service.ParseJobName(args[0]); err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]string{"job": args[0]})
			path := "/cron/trigger"
			if async {
				path += "?async=true"
			}
			return c.do(http.MethodPost, path, body)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "queue the job for the worker instead of waiting")
	return cmd
}

func buildPreviewCommand(c *client) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what the jobs would send, without sending",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/cron/preview"
			if date != "" {
				path += "?date=" + url.QueryEscape(date)
			}
			return c.do(http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "reference date, YYYY-MM-DD or RFC 3339")
	return cmd
}

func buildScheduleCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Show the next run of every job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodGet, "/cron/schedule", nil)
		},
	}
}

func buildHistoryCommand(c *client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent SMS deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodGet, "/sms/history?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "number of rows")
	return cmd
}

func buildClearCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <id>",
		Short: "Delete a failed delivery so its slot can be sent again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodDelete, "/sms/history/"+url.PathEscape(args[0]), nil)
		},
	}
}

func buildRunsCommand(c *client) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent job runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodGet, "/jobs/runs?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

// do sends the request and pretty-prints a JSON response body.
func (c *client) do(method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.base, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}

	if len(data) == 0 {
		fmt.Fprintln(c.out, resp.Status)
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = c.out.Write(data)
		return err
	}
	fmt.Fprintln(c.out, pretty.String())
	return nil
}
