package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"pgregory.net/rapid"
)

func strptr(s string) *string { return &s }

func sampleEntry() DecoratedEntry {
	return DecoratedEntry{
		Path: "/home/user/project/main.go",
		Metadata: EntryMetadata{
			Size:        4096,
			Modified:    1714000000,
			Accessed:    1714000100,
			Created:     1713000000,
			IsFile:      true,
			Permissions: 0o644,
			UID:         1000,
			GID:         1000,
		},
		CustomFields: map[string]string{
			"git_status": "modified",
			"lines":      "120",
		},
	}
}

func TestRoundTripEveryVariant(t *testing.T) {
	entry := sampleEntry()

	tests := []struct {
		name string
		body Body
	}{
		{"get_name", GetNameRequest{}},
		{"get_version", GetVersionRequest{}},
		{"get_description", GetDescriptionRequest{}},
		{"get_supported_formats", GetSupportedFormatsRequest{}},
		{"decorate", DecorateRequest{Entry: entry}},
		{"format_field", FormatFieldRequest{Entry: &entry, Format: "long"}},
		{"action", ActionRequest{Action: "install", Args: []string{"--force", "pkg"}}},
		{"name_response", NameResponse{Name: "git_status"}},
		{"version_response", VersionResponse{Version: "1.2.3"}},
		{"description_response", DescriptionResponse{Description: "shows git status per file"}},
		{"formats_response", FormatsResponse{Formats: []string{"default", "long"}}},
		{"decorated_response", DecoratedResponse{Entry: entry}},
		{"field_response_set", FieldResponse{Field: strptr("★ 42")}},
		{"field_response_empty", FieldResponse{}},
		{"action_response_ok", ActionResponse{Success: true}},
		{"action_response_err", ActionResponse{Success: false, Error: strptr("no such action")}},
		{"config", ConfigRequest{
			Config:    map[string]string{"version": "0.1.0", "theme": "dark"},
			Theme:     "dark",
			Shortcuts: []string{"gs:status", "gl:log"},
		}},
		{"batch_decorate", BatchDecorateRequest{Entries: []DecoratedEntry{entry, {Path: "/tmp/x"}}, Format: "default"}},
		{"batch_decorated_response", BatchDecoratedResponse{Entries: []DecoratedEntry{entry}}},
		{"get_available_actions", GetAvailableActionsRequest{}},
		{"available_actions_response", AvailableActionsResponse{Actions: []ActionInfo{
			{Name: "install", Usage: "install <pkg>", Description: "installs a package", Examples: []string{"install ripgrep"}},
			{Name: "update"},
		}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(Message{Body: tc.body})
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.body, decoded.Body)
		})
	}
}

func TestDecodeEmptyBufferHasNilBody(t *testing.T) {
	m, err := Decode(nil)
	require.NoError(t, err)
	require.Nil(t, m.Body)
}

func TestDecodeMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"dangling varint", []byte{0xFF}},
		{"truncated tag", []byte{0x80}},
		{"length past end", []byte{0x2A, 0x10, 0x01}},
		// Known field numbers carrying the wrong wire type are corruption,
		// not skippable unknowns.
		{"decorate as varint", []byte{0x28, 0x01}},
		{"config as fixed32", []byte{0x7D, 0x01, 0x02, 0x03, 0x04}},
		{"name response as varint", []byte{0x40, 0x01}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			require.Error(t, err)
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
		})
	}
}

func TestDecodeTruncatedMessage(t *testing.T) {
	encoded := Encode(Message{Body: DecorateRequest{Entry: sampleEntry()}})
	for _, cut := range []int{1, 2, len(encoded) / 2} {
		_, err := Decode(encoded[:len(encoded)-cut])
		require.Error(t, err, "cut=%d", cut)
	}
}

// A peer built against a newer schema may send fields this host has never
// heard of; they must be skipped, not rejected.
func TestDecodeSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future payload"))
	b = append(b, Encode(Message{Body: NameResponse{Name: "alpha"}})...)

	m, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, NameResponse{Name: "alpha"}, m.Body)
}

func TestDecodeLastVariantWins(t *testing.T) {
	b := Encode(Message{Body: NameResponse{Name: "first"}})
	b = append(b, Encode(Message{Body: VersionResponse{Version: "2.0"}})...)

	m, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, VersionResponse{Version: "2.0"}, m.Body)
}

func drawEntry(t *rapid.T, label string) DecoratedEntry {
	fields := rapid.MapOf(rapid.String(), rapid.String()).Draw(t, label+"_fields")
	if len(fields) == 0 {
		fields = nil
	}
	return DecoratedEntry{
		Path: rapid.String().Draw(t, label+"_path"),
		Metadata: EntryMetadata{
			Size:        rapid.Uint64().Draw(t, label+"_size"),
			Modified:    rapid.Uint64().Draw(t, label+"_modified"),
			Accessed:    rapid.Uint64().Draw(t, label+"_accessed"),
			Created:     rapid.Uint64().Draw(t, label+"_created"),
			IsDir:       rapid.Bool().Draw(t, label+"_dir"),
			IsFile:      rapid.Bool().Draw(t, label+"_file"),
			IsSymlink:   rapid.Bool().Draw(t, label+"_symlink"),
			Permissions: rapid.Uint32().Draw(t, label+"_perms"),
			UID:         rapid.Uint32().Draw(t, label+"_uid"),
			GID:         rapid.Uint32().Draw(t, label+"_gid"),
		},
		CustomFields: fields,
	}
}

func TestRoundTripPropertyDecorate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := DecorateRequest{Entry: drawEntry(t, "entry")}
		decoded, err := Decode(Encode(Message{Body: body}))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		require.Equal(t, body, decoded.Body)
	})
}

func TestRoundTripPropertyBatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		var entries []DecoratedEntry
		for i := 0; i < n; i++ {
			entries = append(entries, drawEntry(t, "entry"))
		}
		body := BatchDecorateRequest{Entries: entries, Format: rapid.String().Draw(t, "format")}
		decoded, err := Decode(Encode(Message{Body: body}))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		require.Equal(t, body, decoded.Body)
	})
}
