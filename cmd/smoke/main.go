// Command smoke drives a running server through index, context assembly,
// summarization and delete. It exits non-zero on the first failed step.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

func main() {
	baseURL := os.Getenv("SMOKE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	userID := os.Getenv("SMOKE_USER_ID")
	legacyID := os.Getenv("SMOKE_LEGACY_ID")
	if userID == "" || legacyID == "" {
		fmt.Println("SMOKE_USER_ID and SMOKE_LEGACY_ID must name an existing membership")
		os.Exit(2)
	}
	client := &http.Client{Timeout: 60 * time.Second}
	storyID := uuid.NewString()
	conversationID := uuid.NewString()

	steps := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"health", http.MethodGet, "/healthz", nil, http.StatusOK},
		{"index story", http.MethodPut, "/v1/stories/" + storyID + "/index", map[string]string{
			"legacy_id":  legacyID,
			"author_id":  userID,
			"title":      "Summers at the Lake",
			"content":    "Every July Grandpa Joe rowed us across Lake Winnipesaukee before breakfast. His sister Rose packed blueberry muffins.",
			"visibility": "public",
		}, http.StatusOK},
		{"assemble context", http.MethodPost, "/v1/context", map[string]any{
			"user_id":   userID,
			"legacy_id": legacyID,
			"query":     "Who was Rose?",
		}, http.StatusOK},
		{"after turn", http.MethodPost, "/v1/conversations/" + conversationID + "/turns", map[string]string{
			"user_id":   userID,
			"legacy_id": legacyID,
		}, http.StatusAccepted},
		{"delete story", http.MethodDelete, "/v1/stories/" + storyID + "/index", nil, http.StatusOK},
	}

	for i, s := range steps {
		fmt.Printf("%d. %s...\n", i+1, s.name)
		body, err := send(client, s.method, baseURL+s.path, s.body, s.want)
		if err != nil {
			fmt.Printf("FAILED: %s: %v\n", s.name, err)
			os.Exit(1)
		}
		fmt.Printf("PASSED: %s\n%s\n", s.name, body)
	}
}

func send(client *http.Client, method, url string, payload any, want int) (string, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	return string(respBody), nil
}
