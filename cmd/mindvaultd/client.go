package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// controlClient talks to a running daemon's control surface. Both
// commands exit non-zero (via a returned error) when the daemon is
// unreachable.
var controlClient = &http.Client{Timeout: 5 * time.Second}

// printStatus queries GET /status and renders it for humans.
func printStatus(addr string) error {
	resp, err := controlClient.Get("http://" + addr + "/status")
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var status struct {
		Running       bool   `json:"running"`
		CurrentTask   string `json:"currentTask"`
		PID           int    `json:"pid"`
		UptimeSeconds int64  `json:"uptimeSeconds"`
		Tasks         []struct {
			Name       string    `json:"name"`
			LastRunAt  time.Time `json:"lastRunAt"`
			LastResult string    `json:"lastResult"`
			LastError  string    `json:"lastError"`
		} `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("bad status response: %w", err)
	}

	state := "stopped"
	if status.Running {
		state = "running"
	}
	fmt.Printf("daemon %s (pid %d, up %s)\n", state, status.PID,
		(time.Duration(status.UptimeSeconds) * time.Second).String())
	if status.CurrentTask != "" {
		fmt.Printf("current task: %s\n", status.CurrentTask)
	}
	for _, t := range status.Tasks {
		last := "never"
		if !t.LastRunAt.IsZero() {
			last = t.LastRunAt.Local().Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("  %-20s %-8s last run %s", t.Name, t.LastResult, last)
		if t.LastError != "" {
			line += "  (" + t.LastError + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// postStop asks the daemon to shut down.
func postStop(addr string) error {
	resp, err := controlClient.Post("http://"+addr+"/stop", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stop request failed with status %d", resp.StatusCode)
	}
	fmt.Println("stop requested")
	return nil
}
