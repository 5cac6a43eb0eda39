package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// call sends a request to the daemon and decodes a JSON reply into out when
// out is non-nil. Error replies carry {"error": "..."}.
func call(method, path string, body io.Reader, out any) error {
	req, err := http.NewRequest(method, daemonURL(path), body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errDaemonDown, err)
	}

	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("daemon: %s", e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}

	return nil
}
