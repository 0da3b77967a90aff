package stages

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Entry is one line of the plugin manifest.
type Entry struct {
	TenantID string `json:"tenant_id"`
	PluginID string `json:"plugin_id"`
	Kind     string `json:"kind"`
	Provider string `json:"provider"`
}

// SortEntries orders entries by tenant, then plugin.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TenantID != entries[j].TenantID {
			return entries[i].TenantID < entries[j].TenantID
		}
		return entries[i].PluginID < entries[j].PluginID
	})
}

// EncodeManifest renders entries as JSON lines.
func EncodeManifest(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("encode manifest entry for tenant %s: %w", e.TenantID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses a JSON lines manifest. Blank lines are ignored.
func DecodeManifest(data []byte) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if e.TenantID == "" || e.PluginID == "" {
			return nil, fmt.Errorf("manifest line %d: tenant_id and plugin_id are required", line)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}
