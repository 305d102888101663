package fieldsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RecordsClient talks to the authoritative records service. It is the
// production commit collaborator and audit sink: one instance serves
// every entity type, routed by resource path.
type RecordsClient struct {
	baseURL  string
	apiKey   string
	deviceID string
	client   *http.Client
	log      *DebugLogger
}

// NewRecordsClient creates a records service client.
func NewRecordsClient(baseURL, apiKey, deviceID string) *RecordsClient {
	return &RecordsClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		deviceID: deviceID,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetDebugLogger installs a logger for request/response tracing.
func (c *RecordsClient) SetDebugLogger(log *DebugLogger) { c.log = log }

// resourcePaths maps entity types to their REST collection paths.
var resourcePaths = map[EntityType]string{
	EntityCase:       "cases",
	EntityPerson:     "persons",
	EntityEvidence:   "evidence",
	EntityCasePerson: "case-persons",
	EntityVehicle:    "vehicles",
	EntityAlert:      "alerts",
}

// commitRequest is the wire shape of a replayed change.
type commitRequest struct {
	EntityID       string          `json:"entity_id"`
	DeviceID       string          `json:"device_id"`
	PayloadVersion int             `json:"payload_version"`
	Payload        json.RawMessage `json:"payload"`
}

// healthResponse is the records service health check response.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Committer returns the commit collaborator for one entity type.
// Unknown types get a committer that always fails; the validator
// normally rejects such entries before commit is reached.
func (c *RecordsClient) Committer(entityType EntityType) Committer {
	return CommitterFunc(func(ctx context.Context, op Operation, entityID string, payload json.RawMessage) error {
		return c.commit(ctx, entityType, op, entityID, payload)
	})
}

func (c *RecordsClient) commit(ctx context.Context, entityType EntityType, op Operation, entityID string, payload json.RawMessage) error {
	resource, ok := resourcePaths[entityType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedEntityType, entityType)
	}

	var (
		method string
		url    string
	)
	switch op {
	case OpCreate:
		method, url = http.MethodPost, fmt.Sprintf("%s/api/v1/%s", c.baseURL, resource)
	case OpUpdate:
		method, url = http.MethodPut, fmt.Sprintf("%s/api/v1/%s/%s", c.baseURL, resource, entityID)
	case OpDelete:
		method, url = http.MethodDelete, fmt.Sprintf("%s/api/v1/%s/%s", c.baseURL, resource, entityID)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}

	var body io.Reader
	var raw []byte
	if op != OpDelete {
		var err error
		raw, err = json.Marshal(commitRequest{
			EntityID:       entityID,
			DeviceID:       c.deviceID,
			PayloadVersion: PayloadVersion,
			Payload:        payload,
		})
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.log.LogRequest(method, url, raw)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		c.log.LogResponse(resp.StatusCode, resp.Status, respBody)
		return fmt.Errorf("commit rejected: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// Record implements AuditSink by posting the event to the records
// service audit endpoint.
func (c *RecordsClient) Record(ctx context.Context, event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	url := c.baseURL + "/api/v1/audit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("audit write failed: %s - %s", resp.Status, string(respBody))
	}

	return nil
}

// Health checks the records service health.
func (c *RecordsClient) Health(ctx context.Context) (*healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed: %s", resp.Status)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}

	return &health, nil
}

func (c *RecordsClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "fieldsync-client/1.0")
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}
}
