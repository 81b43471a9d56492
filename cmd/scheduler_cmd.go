package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// schedulerCmd talks to a running `serve` process over HTTP, mirroring the
// teacher's managed-mode CLI pattern of dispatching control commands to a
// long-lived daemon rather than touching its state directly.
func schedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Control the poll loop of a running goscheduler serve process",
	}
	cmd.AddCommand(schedulerControlCmd("status", http.MethodGet, "/api/scheduler/status"))
	cmd.AddCommand(schedulerControlCmd("start", http.MethodPost, "/api/scheduler/start"))
	cmd.AddCommand(schedulerControlCmd("stop", http.MethodPost, "/api/scheduler/stop"))
	return cmd
}

func schedulerControlCmd(use, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s the scheduler", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "http://" + httpHostPort(cfg.HTTPAddr) + path
			req, err := http.NewRequest(method, url, nil)
			if err != nil {
				return err
			}
			if cfg.HTTPToken != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.HTTPToken)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("is `goscheduler serve` running at %s? %w", cfg.HTTPAddr, err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			var pretty map[string]any
			if json.Unmarshal(body, &pretty) == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(out))
				return nil
			}
			fmt.Println(string(body))
			return nil
		},
	}
}

func httpHostPort(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
