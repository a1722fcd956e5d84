package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a batch of tasks from a YAML file",
	Long: `Submit enqueues every task described in a YAML batch file against a
running control plane.

Examples:
  # Submit a batch of tasks
  skynet-control submit -f tasks.yaml

  # Submit against a non-default control plane address
  skynet-control submit -f tasks.yaml --addr http://10.0.0.5:8080`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "YAML file describing the task batch (required)")
	submitCmd.Flags().String("addr", "http://127.0.0.1:8080", "Control plane base URL")
	submitCmd.Flags().String("api-key", "", "API key, if the control plane requires one")
	_ = submitCmd.MarkFlagRequired("file")
}

// taskBatch is the YAML document submit reads: a flat list of tasks,
// each mirroring the enqueue request body the API accepts.
type taskBatch struct {
	Tasks []batchTask `yaml:"tasks"`
}

type batchTask struct {
	ID            string                 `yaml:"id"`
	Action        string                 `yaml:"action"`
	Params        map[string]interface{} `yaml:"params,omitempty"`
	Priority      int                    `yaml:"priority,omitempty"`
	Dependencies  []string               `yaml:"dependencies,omitempty"`
	RequiredFiles []string               `yaml:"requiredFiles,omitempty"`
	GatewayID     string                 `yaml:"gatewayId,omitempty"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	addr, _ := cmd.Flags().GetString("addr")
	apiKey, _ := cmd.Flags().GetString("api-key")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var batch taskBatch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}
	if len(batch.Tasks) == 0 {
		return fmt.Errorf("no tasks found in %s", filename)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	for _, t := range batch.Tasks {
		if t.ID == "" || t.Action == "" {
			return fmt.Errorf("task entry missing id or action: %+v", t)
		}
		if err := enqueueOne(httpClient, addr, apiKey, t); err != nil {
			return fmt.Errorf("enqueue %s: %w", t.ID, err)
		}
		fmt.Printf("✓ task enqueued: %s (action=%s)\n", t.ID, t.Action)
	}
	return nil
}

func enqueueOne(c *http.Client, addr, apiKey string, t batchTask) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"id":             t.ID,
		"action":         t.Action,
		"params":         json.RawMessage(params),
		"priority":       t.Priority,
		"dependencies":   t.Dependencies,
		"required_files": t.RequiredFiles,
		"gateway_id":     t.GatewayID,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, addr+"/v1/tasks/enqueue", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return nil
}
