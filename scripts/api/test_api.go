// Minimal end-to-end smoke test for the Stratomai API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/stake-plus/stratomai-agents/src/api/auth"
)

var (
	baseURL = getenv("API_URL", "http://localhost:8080/v1")
	secret  = getenv("JWT_SECRET", "")
	userID  = getenv("SMOKE_USER_ID", "smoke-"+uuid.NewString())
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	if secret == "" {
		log.Fatal("JWT_SECRET must match the server's secret")
	}
	token, err := auth.IssueToken([]byte(secret), userID, 10*time.Minute)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	agentID := createAgent(token)
	checkAgents(token, agentID)

	taskID := submitTask(token, agentID)
	checkTasks(token, taskID)

	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- agents

func createAgent(tok string) string {
	var resp struct {
		Agent struct{ ID string } `json:"agent"`
	}
	doAuth(tok, "POST", "/agents", map[string]any{
		"name":         "Smoke test " + uuid.NewString()[:8],
		"role":         "scheduler",
		"capabilities": []string{"calendar"},
	}, &resp, http.StatusCreated)
	if resp.Agent.ID == "" {
		log.Fatal("agents: empty id")
	}
	return resp.Agent.ID
}

func checkAgents(tok, want string) {
	var resp struct {
		Agents []struct{ ID string } `json:"agents"`
	}
	doAuth(tok, "GET", "/agents", nil, &resp, http.StatusOK)
	for _, a := range resp.Agents {
		if a.ID == want {
			return
		}
	}
	log.Fatal("agents: created agent not found")
}

// ----------------------------- tasks

func submitTask(tok, agentID string) string {
	var resp struct {
		Task struct {
			ID     string
			Status string
		} `json:"task"`
	}
	doAuth(tok, "POST", "/tasks", map[string]any{
		"instruction":       "Schedule a project sync with the design team next Tuesday",
		"agent_id":          agentID,
		"requires_approval": true,
	}, &resp, http.StatusCreated)
	if resp.Task.Status != "requires_approval" {
		log.Fatalf("tasks: status %q, want requires_approval", resp.Task.Status)
	}
	return resp.Task.ID
}

func checkTasks(tok, want string) {
	var resp struct {
		Tasks []struct{ ID string } `json:"tasks"`
	}
	doAuth(tok, "GET", "/tasks?status=requires_approval", nil, &resp, http.StatusOK)
	for _, t := range resp.Tasks {
		if t.ID == want {
			return
		}
	}
	log.Fatal("tasks: submitted task not found")
}

// ----------------------------- helpers

func doAuth(token, method, path string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
