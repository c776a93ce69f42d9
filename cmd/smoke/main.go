// Command smoke exercises a running leadline-api instance end to end:
// registers a manager and a sales executive, pushes a lead through an
// assignment and a status change, then checks the executive's inbox.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("%s %s -> %d: %v", method, path, resp.StatusCode, errBody)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func main() {
	baseURL := os.Getenv("LEADLINE_SMOKE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Int31()
	managerEmail := fmt.Sprintf("smoke-manager-%d@leadline.test", suffix)
	execEmail := fmt.Sprintf("smoke-exec-%d@leadline.test", suffix)

	manager := &client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
	exec := &client{baseURL: baseURL, http: manager.http}

	var reg struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := manager.do(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"name": "Smoke Manager", "email": managerEmail, "password": "smoke-pass-1", "role": "manager",
	}, &reg); err != nil {
		log.Fatalf("register manager: %v", err)
	}
	if err := exec.do(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"name": "Smoke Exec", "email": execEmail, "password": "smoke-pass-2", "role": "sales_executive",
	}, &reg); err != nil {
		log.Fatalf("register exec: %v", err)
	}
	execID := reg.Data.ID

	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := manager.do(http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email": managerEmail, "password": "smoke-pass-1",
	}, &login); err != nil {
		log.Fatalf("login manager: %v", err)
	}
	manager.token = login.Data.Token
	if err := exec.do(http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email": execEmail, "password": "smoke-pass-2",
	}, &login); err != nil {
		log.Fatalf("login exec: %v", err)
	}
	exec.token = login.Data.Token

	var lead struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := manager.do(http.MethodPost, "/api/v1/leads", map[string]any{
		"name": "Smoke Lead", "email": fmt.Sprintf("lead-%d@corp.test", suffix),
		"owner_id": execID, "value": 990000,
	}, &lead); err != nil {
		log.Fatalf("create lead: %v", err)
	}

	if err := manager.do(http.MethodPut, "/api/v1/leads/"+lead.Data.ID, map[string]any{
		"status": "contacted",
	}, &lead); err != nil {
		log.Fatalf("update lead: %v", err)
	}
	if lead.Data.Status != "contacted" {
		log.Fatalf("status change not applied: %s", lead.Data.Status)
	}

	var trail struct {
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := exec.do(http.MethodGet, "/api/v1/leads/"+lead.Data.ID+"/activities", nil, &trail); err != nil {
		log.Fatalf("list activities: %v", err)
	}
	// creation + status_change
	if trail.Pagination.Total < 2 {
		log.Fatalf("expected at least 2 activities, got %d", trail.Pagination.Total)
	}

	var inbox struct {
		Unread int `json:"unread"`
	}
	if err := exec.do(http.MethodGet, "/api/v1/notifications", nil, &inbox); err != nil {
		log.Fatalf("list notifications: %v", err)
	}
	if inbox.Unread < 1 {
		log.Fatalf("expected an unread assignment notification, got %d", inbox.Unread)
	}

	fmt.Printf("smoke test passed: lead=%s exec=%s unread=%d\n", lead.Data.ID, execID, inbox.Unread)
}
