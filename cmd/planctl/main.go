// Command planctl is the operator CLI for a running planweaver server.
// It starts plan generation, inspects instance status and history, and
// waits for completion, all over the server's HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/planweaver/planweaver/buildinfo"
	"github.com/planweaver/planweaver/metrics"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("a command is required")
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		return cmdStart(args)
	case "status":
		return cmdStatus(args)
	case "history":
		return cmdHistory(args)
	case "terminate":
		return cmdTerminate(args)
	case "wait":
		return cmdWait(args)
	case "version":
		info := buildinfo.Get()
		fmt.Printf("planctl %s (commit %s, built %s)\n",
			info.Version, info.GitCommit, info.BuildTime)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nPlanweaver CLI - Weekly Meal Plan Orchestration\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  start      Start plan generation for a user-week\n")
	fmt.Fprintf(os.Stderr, "  status     Show the status of an instance\n")
	fmt.Fprintf(os.Stderr, "  history    Show the event history of an instance\n")
	fmt.Fprintf(os.Stderr, "  terminate  Terminate a running instance\n")
	fmt.Fprintf(os.Stderr, "  wait       Wait for an instance to finish\n")
	fmt.Fprintf(os.Stderr, "  version    Print version information\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s start --user u1 --week 2025-W37\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s status --id <instance-id>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s wait --id <instance-id> --timeout 2m\n", os.Args[0])
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", defaultServerURL, "Planweaver server URL")
}

func cmdStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	server := serverFlag(fs)
	userID := fs.String("user", "", "User ID to generate a plan for")
	week := fs.String("week", "", "ISO week identifier, e.g. 2025-W37")
	regenerate := fs.Bool("regenerate", false, "Replace an existing plan for the week")
	wait := fs.Bool("wait", false, "Wait for the plan to finish generating")
	timeout := fs.Duration("timeout", 2*time.Minute, "How long to wait with --wait")
	pushURL := fs.String("push-url", "", "Remote write URL to push a run outcome metric to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *week == "" {
		return fmt.Errorf("both --user and --week are required")
	}

	body, err := json.Marshal(map[string]any{
		"user_id":    *userID,
		"week":       *week,
		"regenerate": *regenerate,
	})
	if err != nil {
		return err
	}

	var started struct {
		InstanceID string `json:"instance_id"`
	}
	if err := doJSON(http.MethodPost, *server+"/api/plans", body, &started); err != nil {
		return err
	}
	fmt.Printf("started %s\n", started.InstanceID)

	if *wait {
		err := waitForInstance(*server, started.InstanceID, *timeout)
		pushOutcome(*pushURL, err)
		return err
	}
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Instance ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	return printJSON(*server + "/api/plans/" + *id)
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Instance ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	return printJSON(*server + "/api/plans/" + *id + "/history")
}

func cmdTerminate(args []string) error {
	fs := flag.NewFlagSet("terminate", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Instance ID")
	reason := fs.String("reason", "terminated by operator", "Termination reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	body, err := json.Marshal(map[string]string{"reason": *reason})
	if err != nil {
		return err
	}
	if err := doJSON(http.MethodPost, *server+"/api/plans/"+*id+"/terminate", body, nil); err != nil {
		return err
	}
	fmt.Printf("terminated %s\n", *id)
	return nil
}

func cmdWait(args []string) error {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Instance ID")
	timeout := fs.Duration("timeout", 2*time.Minute, "How long to wait")
	pushURL := fs.String("push-url", "", "Remote write URL to push a run outcome metric to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	err := waitForInstance(*server, *id, *timeout)
	pushOutcome(*pushURL, err)
	return err
}

// pushOutcome reports the run outcome over remote write when a push URL is
// configured. Best effort; a scrape endpoint is useless for a process that
// exits right after the run.
func pushOutcome(pushURL string, runErr error) {
	if pushURL == "" {
		return
	}
	hostname, _ := os.Hostname()
	reg := metrics.NewPushRegistry(metrics.PushConfig{
		URL:      pushURL,
		Prefix:   "planweaver",
		Job:      "planctl",
		Instance: hostname,
	})
	runs, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "cli_runs_total",
		Help: "CLI-driven plan generations by outcome.",
	}, []string{"outcome"})
	if err != nil {
		return
	}
	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
	}
	runs.With(prometheus.Labels{"outcome": outcome}).Inc()
}

type instanceStatus struct {
	InstanceID   string          `json:"instance_id"`
	Status       string          `json:"status"`
	CustomStatus string          `json:"custom_status"`
	Output       json.RawMessage `json:"output"`
}

func waitForInstance(server, id string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		var st instanceStatus
		if err := doJSON(http.MethodGet, server+"/api/plans/"+id, nil, &st); err != nil {
			return err
		}
		switch st.Status {
		case "completed":
			fmt.Printf("%s completed\n", id)
			if len(st.Output) > 0 {
				return printRaw(st.Output)
			}
			return nil
		case "failed":
			return fmt.Errorf("%s failed: %s", id, st.CustomStatus)
		case "terminated":
			return fmt.Errorf("%s was terminated", id)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s (last status %s)", id, st.Status)
		case <-ticker.C:
		}
	}
}

// doJSON performs an HTTP request and decodes the JSON response into out.
// Non-2xx responses become errors carrying the server's error message.
func doJSON(method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func printJSON(url string) error {
	var raw json.RawMessage
	if err := doJSON(http.MethodGet, url, nil, &raw); err != nil {
		return err
	}
	return printRaw(raw)
}

func printRaw(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}
