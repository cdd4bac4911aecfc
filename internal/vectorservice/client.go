package vectorservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout bounds every VectorService RPC, per the five-second
// default for blocking calls against it.
const defaultTimeout = 5 * time.Second

// Client talks to a remote VectorService over HTTP. Callers must treat a
// non-nil error as "service absent" and fall back to an in-process path;
// Client never distinguishes connection-refused from timeout.
type Client struct {
	addr string
	http *http.Client
}

// NewClient returns a Client targeting addr (e.g. "127.0.0.1:8099").
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Healthy reports whether the service answers /health within the timeout.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get("http://" + c.addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Search asks the remote matrix for the top-k matches to vector.
func (c *Client) Search(vector []float32, k int) ([]Result, error) {
	var resp searchResponse
	if err := c.postJSON("/search", searchRequest{Vector: vector, K: k}, &resp); err != nil {
		return nil, err
	}
	out := make([]Result, len(resp.Results))
	for i, h := range resp.Results {
		out[i] = Result{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// Embed asks the remote service to embed texts for the given task type
// ("doc" or "query"), with an optional shared context for documents.
func (c *Client) Embed(texts []string, context, taskType string) ([][]float32, error) {
	var resp embedResponse
	req := embedRequest{Texts: texts, Context: context, TaskType: taskType}
	if err := c.postJSON("/embed", req, &resp); err != nil {
		return nil, err
	}
	return resp.Vectors, nil
}

// Add inserts or overwrites one vector in the remote matrix.
func (c *Client) Add(id string, vector []float32) error {
	return c.postJSON("/add", addRequest{ID: id, Vector: vector}, nil)
}

// AddBatch replaces the remote matrix's contents with the given batch.
func (c *Client) AddBatch(ids []string, vectors [][]float32) error {
	return c.postJSON("/add_batch", addBatchRequest{IDs: ids, Vectors: vectors}, nil)
}

func (c *Client) postJSON(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vectorservice client: marshal: %w", err)
	}
	resp, err := c.http.Post("http://"+c.addr+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("vectorservice client: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vectorservice client: HTTP %d: %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsUnreachable reports whether err represents the service being absent.
// Any Client error (connection refused, dial timeout, read timeout) is
// treated as "service absent" rather than distinguished further.
func IsUnreachable(err error) bool {
	return err != nil
}
