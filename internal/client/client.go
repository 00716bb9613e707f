// Package client talks to the telemed HTTP API on behalf of a doctor or
// patient agent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/immxrtalbeast/telemed/internal/domain"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	base string
	http *http.Client
}

func New(server string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(server, "/"), http: httpClient}
}

// Server is the base URL the client was built with.
func (c *Client) Server() string { return c.base }

func (c *Client) CreateUser(ctx context.Context, name string, role domain.Role, specialty string) (*domain.User, error) {
	var res struct {
		User domain.User `json:"user"`
	}
	body := map[string]string{"name": name, "role": string(role), "specialty": specialty}
	if err := c.do(ctx, http.MethodPost, "/api/users", body, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

func (c *Client) SetStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	body := map[string]string{"status": string(status)}
	return c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(userID)+"/status", body, nil)
}

func (c *Client) JoinQueue(ctx context.Context, patientID, consultationType string) (*domain.QueueEntry, error) {
	var res struct {
		Entry domain.QueueEntry `json:"entry"`
	}
	body := map[string]string{"patient_id": patientID, "type": consultationType}
	if err := c.do(ctx, http.MethodPost, "/api/queue", body, &res); err != nil {
		return nil, err
	}
	return &res.Entry, nil
}

func (c *Client) LeaveQueue(ctx context.Context, patientID string) error {
	return c.do(ctx, http.MethodDelete, "/api/queue/"+url.PathEscape(patientID), nil, nil)
}

// NextEntry returns the oldest waiting entry. An empty queue is a 404 APIError.
func (c *Client) NextEntry(ctx context.Context) (*domain.QueueEntry, error) {
	var res struct {
		Entry domain.QueueEntry `json:"entry"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/queue/next", nil, &res); err != nil {
		return nil, err
	}
	return &res.Entry, nil
}

func (c *Client) Accept(ctx context.Context, doctorID, patientID, entryID string) (*domain.Consultation, domain.SessionID, error) {
	var res struct {
		Consultation domain.Consultation `json:"consultation"`
		SessionID    domain.SessionID    `json:"session_id"`
	}
	body := map[string]string{"doctor_id": doctorID, "patient_id": patientID, "entry_id": entryID}
	if err := c.do(ctx, http.MethodPost, "/api/consultations/accept", body, &res); err != nil {
		return nil, "", err
	}
	return &res.Consultation, res.SessionID, nil
}

func (c *Client) Reject(ctx context.Context, doctorID, patientID, entryID string) error {
	body := map[string]string{"doctor_id": doctorID, "patient_id": patientID, "entry_id": entryID}
	return c.do(ctx, http.MethodPost, "/api/consultations/reject", body, nil)
}

func (c *Client) Finish(ctx context.Context, recordID, doctorID string) (*domain.Consultation, error) {
	var res struct {
		Consultation domain.Consultation `json:"consultation"`
	}
	body := map[string]string{"doctor_id": doctorID}
	if err := c.do(ctx, http.MethodPost, "/api/consultations/"+url.PathEscape(recordID)+"/finish", body, &res); err != nil {
		return nil, err
	}
	return &res.Consultation, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
