// Package protocol defines the wire messages exchanged between lla and its
// plugins, along with the schema-driven binary codec that carries them across
// the module boundary.
//
// Every message is a tagged union: exactly one variant is set per envelope.
// The encoding is standard protocol-buffers wire format (field numbers plus
// wire types), so a plugin compiled against an older or newer schema still
// decodes the fields it knows about and skips the rest. Host and plugins are
// built independently; the codec is the only thing they have to agree on.
package protocol

// CurrentVersion is the plugin ABI version the host speaks. A plugin whose
// reported version differs is never registered - there is no compatibility
// window across bumps.
const CurrentVersion uint32 = 1

// Message is the envelope for every request and response. Body holds exactly
// one variant; a nil Body is only produced by decoding an empty buffer and is
// rejected wherever a specific response is expected.
type Message struct {
	Body Body
}

// Body is implemented by every message variant.
type Body interface {
	isMessageBody()
}

// GetNameRequest asks a plugin for its protocol-reported name.
type GetNameRequest struct{}

// GetVersionRequest asks a plugin for its own version string.
type GetVersionRequest struct{}

// GetDescriptionRequest asks a plugin for a human-readable description.
type GetDescriptionRequest struct{}

// GetSupportedFormatsRequest asks a plugin which output formats it decorates.
type GetSupportedFormatsRequest struct{}

// DecorateRequest asks a plugin to contribute custom fields for one entry.
type DecorateRequest struct {
	Entry DecoratedEntry
}

// FormatFieldRequest asks a plugin to render an inline display string for an
// entry under the given format.
type FormatFieldRequest struct {
	Entry  *DecoratedEntry
	Format string
}

// ActionRequest invokes a named plugin action with positional arguments.
type ActionRequest struct {
	Action string
	Args   []string
}

// NameResponse carries the plugin's self-reported name.
type NameResponse struct {
	Name string
}

// VersionResponse carries the plugin's version string.
type VersionResponse struct {
	Version string
}

// DescriptionResponse carries the plugin's description.
type DescriptionResponse struct {
	Description string
}

// FormatsResponse lists the output formats a plugin can decorate.
type FormatsResponse struct {
	Formats []string
}

// DecoratedResponse returns an entry with the plugin's custom fields merged in.
type DecoratedResponse struct {
	Entry DecoratedEntry
}

// FieldResponse carries an optional formatted display string. A nil Field
// means the plugin has nothing to show for this entry.
type FieldResponse struct {
	Field *string
}

// ActionResponse reports the outcome of an ActionRequest. Error is only
// meaningful when Success is false.
type ActionResponse struct {
	Success bool
	Error   *string
}

// ConfigRequest is pushed once to a freshly loaded plugin. The response, if
// any, is discarded by the host.
type ConfigRequest struct {
	Config    map[string]string
	Theme     string
	Shortcuts []string
}

// BatchDecorateRequest asks a plugin to decorate many entries in one call.
// Plugins that do not implement batching answer with anything other than a
// BatchDecoratedResponse and the host falls back to per-entry decoration.
type BatchDecorateRequest struct {
	Entries []DecoratedEntry
	Format  string
}

// BatchDecoratedResponse returns the batch entries with custom fields merged,
// in the same order they were sent.
type BatchDecoratedResponse struct {
	Entries []DecoratedEntry
}

// GetAvailableActionsRequest asks a plugin to enumerate its actions.
type GetAvailableActionsRequest struct{}

// AvailableActionsResponse lists the actions a plugin exposes.
type AvailableActionsResponse struct {
	Actions []ActionInfo
}

func (GetNameRequest) isMessageBody()             {}
func (GetVersionRequest) isMessageBody()          {}
func (GetDescriptionRequest) isMessageBody()      {}
func (GetSupportedFormatsRequest) isMessageBody() {}
func (DecorateRequest) isMessageBody()            {}
func (FormatFieldRequest) isMessageBody()         {}
func (ActionRequest) isMessageBody()              {}
func (NameResponse) isMessageBody()               {}
func (VersionResponse) isMessageBody()            {}
func (DescriptionResponse) isMessageBody()        {}
func (FormatsResponse) isMessageBody()            {}
func (DecoratedResponse) isMessageBody()          {}
func (FieldResponse) isMessageBody()              {}
func (ActionResponse) isMessageBody()             {}
func (ConfigRequest) isMessageBody()              {}
func (BatchDecorateRequest) isMessageBody()       {}
func (BatchDecoratedResponse) isMessageBody()     {}
func (GetAvailableActionsRequest) isMessageBody() {}
func (AvailableActionsResponse) isMessageBody()   {}

// DecoratedEntry is one listed file plus the custom fields plugins have
// attached to it so far.
type DecoratedEntry struct {
	Path         string
	Metadata     EntryMetadata
	CustomFields map[string]string
}

// EntryMetadata mirrors the stat information the host collects for an entry.
// Timestamps are epoch seconds.
type EntryMetadata struct {
	Size        uint64
	Modified    uint64
	Accessed    uint64
	Created     uint64
	IsDir       bool
	IsFile      bool
	IsSymlink   bool
	Permissions uint32
	UID         uint32
	GID         uint32
}

// ActionInfo describes one action a plugin exposes through the plugin
// subcommand.
type ActionInfo struct {
	Name        string
	Usage       string
	Description string
	Examples    []string
}
