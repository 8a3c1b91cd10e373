package plugin

import (
	"github.com/llakit/lla/protocol"
)

// Only these two formats are decoration-eligible; everything else is a
// deliberate no-op for the whole pipeline.
const (
	formatDefault = "default"
	formatLong    = "long"
)

const (
	capabilityCacheSize = 512
	decorationCacheSize = 8192
)

// decorationKey memoizes merged fields per (file path, format) pair for the
// duration of a run.
type decorationKey struct {
	path   string
	format string
}

func decorationEligible(format string) bool {
	return format == formatDefault || format == formatLong
}

// SupportedFormats returns the output formats the named plugin declares it
// can decorate. The answer is cached for the run on first query, including
// the empty answer: a plugin that fails to respond supports zero formats.
func (m *Manager) SupportedFormats(name string) []string {
	if formats, ok := m.caps.Get(name); ok {
		return formats
	}

	var formats []string
	resp, err := m.SendRequest(name, protocol.Message{Body: protocol.GetSupportedFormatsRequest{}})
	if err == nil {
		if fr, ok := resp.Body.(protocol.FormatsResponse); ok {
			formats = fr.Formats
		}
	}

	m.caps.Add(name, formats)
	return formats
}

// eligiblePlugins returns the enabled plugins whose declared capabilities
// include format, in sorted name order.
func (m *Manager) eligiblePlugins(format string) []string {
	var eligible []string
	for _, name := range m.EnabledPlugins() {
		for _, f := range m.SupportedFormats(name) {
			if f == format {
				eligible = append(eligible, name)
				break
			}
		}
	}
	return eligible
}

// DecorateEntry merges every eligible plugin's custom fields into entry.
// Results are memoized per (path, format); a cache hit issues no
// cross-boundary calls at all.
func (m *Manager) DecorateEntry(entry *protocol.DecoratedEntry, format string) {
	if m.enabledCount() == 0 || !decorationEligible(format) {
		return
	}

	key := decorationKey{path: entry.Path, format: format}
	if fields, ok := m.decorations.Get(key); ok {
		mergeFields(entry, fields)
		return
	}

	eligible := m.eligiblePlugins(format)
	if len(eligible) == 0 {
		return
	}

	merged := make(map[string]string, len(eligible)*2)
	for _, name := range eligible {
		resp, err := m.SendRequest(name, protocol.Message{Body: protocol.DecorateRequest{Entry: *entry}})
		if err != nil {
			continue
		}
		if dr, ok := resp.Body.(protocol.DecoratedResponse); ok {
			for k, v := range dr.Entry.CustomFields {
				merged[k] = v
			}
		}
	}

	if len(merged) > 0 {
		mergeFields(entry, merged)
		m.decorations.Add(key, merged)
	}
}

// DecorateEntriesBatch decorates a whole listing pass. Each eligible plugin
// is first offered one BatchDecorate call covering every entry; a plugin
// that answers with anything else falls back to per-entry decoration, so
// batching stays an opt-in efficiency, never a correctness requirement.
func (m *Manager) DecorateEntriesBatch(entries []protocol.DecoratedEntry, format string) {
	if len(entries) == 0 || m.enabledCount() == 0 || !decorationEligible(format) {
		return
	}

	eligible := m.eligiblePlugins(format)
	if len(eligible) == 0 {
		return
	}

	for _, name := range eligible {
		batch := protocol.BatchDecorateRequest{
			Entries: append([]protocol.DecoratedEntry(nil), entries...),
			Format:  format,
		}
		if resp, err := m.SendRequest(name, protocol.Message{Body: batch}); err == nil {
			if br, ok := resp.Body.(protocol.BatchDecoratedResponse); ok {
				for i, decorated := range br.Entries {
					if i < len(entries) {
						mergeFields(&entries[i], decorated.CustomFields)
					}
				}
				continue
			}
		}

		for i := range entries {
			resp, err := m.SendRequest(name, protocol.Message{Body: protocol.DecorateRequest{Entry: entries[i]}})
			if err != nil {
				continue
			}
			if dr, ok := resp.Body.(protocol.DecoratedResponse); ok {
				mergeFields(&entries[i], dr.Entry.CustomFields)
			}
		}
	}
}

// FormatFields collects each eligible plugin's inline display string for
// entry, in sorted name order. Plugins without a field for this entry are
// simply absent from the result.
func (m *Manager) FormatFields(entry *protocol.DecoratedEntry, format string) []string {
	if m.enabledCount() == 0 || !decorationEligible(format) {
		return nil
	}

	var fields []string
	for _, name := range m.eligiblePlugins(format) {
		resp, err := m.SendRequest(name, protocol.Message{Body: protocol.FormatFieldRequest{
			Entry:  entry,
			Format: format,
		}})
		if err != nil {
			continue
		}
		if fr, ok := resp.Body.(protocol.FieldResponse); ok && fr.Field != nil {
			fields = append(fields, *fr.Field)
		}
	}
	return fields
}

func mergeFields(entry *protocol.DecoratedEntry, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	if entry.CustomFields == nil {
		entry.CustomFields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		entry.CustomFields[k] = v
	}
}
