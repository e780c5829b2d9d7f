package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrServerDisabled is returned by RequestResync when cfg has the debug
// server turned off.
var ErrServerDisabled = errors.New("debug server disabled")

// RequestResync asks a running bot to reload its registries via POST /resync.
func RequestResync(ctx context.Context, cfg ServerConfig) error {
	if !cfg.Enabled {
		return ErrServerDisabled
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/resync", nil)
	if err != nil {
		return err
	}
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resync: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
