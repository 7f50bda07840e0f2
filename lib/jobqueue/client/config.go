package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// ConfigAll returns every configuration option the server currently has
// set, decoded from the "config.get" (no option) reply. Grounded on
// config.py's Config.all property.
func (c *ScriptClient) ConfigAll(ctx context.Context) (map[string]any, error) {
	raw, err := c.Invoke(ctx, "config.get")
	if err != nil {
		return nil, err
	}
	var all map[string]any
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("client: decode config.get reply %q: %w", raw, err)
	}
	return all, nil
}

// ConfigGet returns the single named option, or ("", false) if it is
// unset. The reply is returned as the raw string the server sent; numeric
// options come back as their decimal string form.
func (c *ScriptClient) ConfigGet(ctx context.Context, option string) (string, bool, error) {
	raw, err := c.Invoke(ctx, "config.get", option)
	if err != nil {
		return "", false, err
	}
	if raw == "" {
		return "", false, nil
	}
	return raw, true, nil
}

// ConfigSet sets option to value. Grounded on config.py's __setitem__.
func (c *ScriptClient) ConfigSet(ctx context.Context, option string, value any) error {
	_, err := c.Invoke(ctx, "config.set", option, value)
	return err
}

// ConfigUnset removes option, reverting it to the server's built-in
// default. Grounded on config.py's __delitem__.
func (c *ScriptClient) ConfigUnset(ctx context.Context, option string) error {
	_, err := c.Invoke(ctx, "config.unset", option)
	return err
}
