package protocol

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. These are the oneof tags of the plugin schema and
// must never be reused or renumbered; plugins compiled against any past
// schema rely on them.
const (
	fieldGetName             = 1
	fieldGetVersion          = 2
	fieldGetDescription      = 3
	fieldGetSupportedFormats = 4
	fieldDecorate            = 5
	fieldFormatField         = 6
	fieldAction              = 7
	fieldNameResponse        = 8
	fieldVersionResponse     = 9
	fieldDescriptionResponse = 10
	fieldFormatsResponse     = 11
	fieldDecoratedResponse   = 12
	fieldFieldResponse       = 13
	fieldActionResponse      = 14
	fieldConfig              = 15
	fieldBatchDecorate       = 16
	fieldBatchDecorated      = 17
	fieldGetAvailableActions = 18
	fieldAvailableActions    = 19
)

// DecodeError reports a malformed buffer. It is the only error type Decode
// returns; a plugin handing back truncated, corrupt, or foreign bytes
// surfaces as one of these rather than a panic.
type DecodeError struct {
	Field protowire.Number
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field > 0 {
		return fmt.Sprintf("protocol: malformed message at field %d: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("protocol: malformed message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(field protowire.Number, err error) error {
	return &DecodeError{Field: field, Err: err}
}

// Encode serializes a message envelope. Encoding is total: every variant and
// every field value has a wire representation, so there is no error return.
func Encode(m Message) []byte {
	var b []byte
	switch v := m.Body.(type) {
	case GetNameRequest:
		b = appendBoolField(b, fieldGetName)
	case GetVersionRequest:
		b = appendBoolField(b, fieldGetVersion)
	case GetDescriptionRequest:
		b = appendBoolField(b, fieldGetDescription)
	case GetSupportedFormatsRequest:
		b = appendBoolField(b, fieldGetSupportedFormats)
	case DecorateRequest:
		b = appendMessageField(b, fieldDecorate, appendEntry(nil, v.Entry))
	case FormatFieldRequest:
		b = appendMessageField(b, fieldFormatField, appendFormatFieldRequest(nil, v))
	case ActionRequest:
		b = appendMessageField(b, fieldAction, appendActionRequest(nil, v))
	case NameResponse:
		b = appendStringField(b, fieldNameResponse, v.Name)
	case VersionResponse:
		b = appendStringField(b, fieldVersionResponse, v.Version)
	case DescriptionResponse:
		b = appendStringField(b, fieldDescriptionResponse, v.Description)
	case FormatsResponse:
		b = appendMessageField(b, fieldFormatsResponse, appendStringList(nil, 1, v.Formats))
	case DecoratedResponse:
		b = appendMessageField(b, fieldDecoratedResponse, appendEntry(nil, v.Entry))
	case FieldResponse:
		b = appendMessageField(b, fieldFieldResponse, appendFieldResponse(nil, v))
	case ActionResponse:
		b = appendMessageField(b, fieldActionResponse, appendActionResponse(nil, v))
	case ConfigRequest:
		b = appendMessageField(b, fieldConfig, appendConfigRequest(nil, v))
	case BatchDecorateRequest:
		b = appendMessageField(b, fieldBatchDecorate, appendBatchDecorateRequest(nil, v))
	case BatchDecoratedResponse:
		b = appendMessageField(b, fieldBatchDecorated, appendEntryList(nil, 1, v.Entries))
	case GetAvailableActionsRequest:
		b = appendBoolField(b, fieldGetAvailableActions)
	case AvailableActionsResponse:
		b = appendMessageField(b, fieldAvailableActions, appendAvailableActions(nil, v))
	}
	return b
}

// Decode parses a message envelope. Unknown field numbers are skipped so a
// newer peer's messages still decode; a malformed buffer yields a
// *DecodeError. When multiple variants appear, the last one wins, matching
// protobuf oneof semantics. An empty buffer decodes to a message with a nil
// Body; callers demanding a particular response reject that themselves.
func Decode(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, decodeErr(0, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldGetName, fieldGetVersion, fieldGetDescription,
			fieldGetSupportedFormats, fieldGetAvailableActions:
			if typ != protowire.VarintType {
				return Message{}, decodeErr(num, fmt.Errorf("unexpected wire type %d", typ))
			}
			_, n = protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, decodeErr(num, protowire.ParseError(n))
			}
			switch num {
			case fieldGetName:
				m.Body = GetNameRequest{}
			case fieldGetVersion:
				m.Body = GetVersionRequest{}
			case fieldGetDescription:
				m.Body = GetDescriptionRequest{}
			case fieldGetSupportedFormats:
				m.Body = GetSupportedFormatsRequest{}
			case fieldGetAvailableActions:
				m.Body = GetAvailableActionsRequest{}
			}
			b = b[n:]

		case fieldNameResponse, fieldVersionResponse, fieldDescriptionResponse:
			s, n := consumeStringField(b, num, typ)
			if n < 0 {
				return Message{}, decodeErr(num, protowire.ParseError(n))
			}
			switch num {
			case fieldNameResponse:
				m.Body = NameResponse{Name: s}
			case fieldVersionResponse:
				m.Body = VersionResponse{Version: s}
			case fieldDescriptionResponse:
				m.Body = DescriptionResponse{Description: s}
			}
			b = b[n:]

		default:
			if !knownMessageField(num) {
				// Unknown field: skip it and keep going.
				skip := protowire.ConsumeFieldValue(num, typ, b)
				if skip < 0 {
					return Message{}, decodeErr(num, protowire.ParseError(skip))
				}
				b = b[skip:]
				continue
			}
			if typ != protowire.BytesType {
				return Message{}, decodeErr(num, fmt.Errorf("unexpected wire type %d", typ))
			}
			payload, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, decodeErr(num, protowire.ParseError(n))
			}
			body, derr := decodeBody(num, payload)
			if derr != nil {
				return Message{}, derr
			}
			if body != nil {
				m.Body = body
			}
			b = b[n:]
		}
	}
	return m, nil
}

// decodeBody parses the payload of a known length-delimited variant. A nil,
// nil return means the field number is not part of the schema.
func decodeBody(num protowire.Number, payload []byte) (Body, error) {
	switch num {
	case fieldDecorate:
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		return DecorateRequest{Entry: e}, nil
	case fieldFormatField:
		return decodeFormatFieldRequest(payload)
	case fieldAction:
		return decodeActionRequest(payload)
	case fieldFormatsResponse:
		formats, err := decodeStringListMessage(payload, num)
		if err != nil {
			return nil, err
		}
		return FormatsResponse{Formats: formats}, nil
	case fieldDecoratedResponse:
		e, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		return DecoratedResponse{Entry: e}, nil
	case fieldFieldResponse:
		return decodeFieldResponse(payload)
	case fieldActionResponse:
		return decodeActionResponse(payload)
	case fieldConfig:
		return decodeConfigRequest(payload)
	case fieldBatchDecorate:
		return decodeBatchDecorateRequest(payload)
	case fieldBatchDecorated:
		entries, err := decodeEntryListMessage(payload, num)
		if err != nil {
			return nil, err
		}
		return BatchDecoratedResponse{Entries: entries}, nil
	case fieldAvailableActions:
		return decodeAvailableActions(payload)
	}
	return nil, nil
}

func appendBoolField(b []byte, num protowire.Number) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringList(b []byte, num protowire.Number, list []string) []byte {
	for _, s := range list {
		b = appendStringField(b, num, s)
	}
	return b
}

func appendEntryList(b []byte, num protowire.Number, entries []DecoratedEntry) []byte {
	for _, e := range entries {
		b = appendMessageField(b, num, appendEntry(nil, e))
	}
	return b
}

// appendStringMap encodes a map<string,string> field with keys in sorted
// order so identical maps always produce identical bytes.
func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = appendStringField(entry, 1, k)
		entry = appendStringField(entry, 2, m[k])
		b = appendMessageField(b, num, entry)
	}
	return b
}

func appendEntry(b []byte, e DecoratedEntry) []byte {
	if e.Path != "" {
		b = appendStringField(b, 1, e.Path)
	}
	if e.Metadata != (EntryMetadata{}) {
		b = appendMessageField(b, 2, appendMetadata(nil, e.Metadata))
	}
	b = appendStringMap(b, 3, e.CustomFields)
	return b
}

func appendMetadata(b []byte, m EntryMetadata) []byte {
	if m.Size != 0 {
		b = appendVarintField(b, 1, m.Size)
	}
	if m.Modified != 0 {
		b = appendVarintField(b, 2, m.Modified)
	}
	if m.Accessed != 0 {
		b = appendVarintField(b, 3, m.Accessed)
	}
	if m.Created != 0 {
		b = appendVarintField(b, 4, m.Created)
	}
	if m.IsDir {
		b = appendVarintField(b, 5, 1)
	}
	if m.IsFile {
		b = appendVarintField(b, 6, 1)
	}
	if m.IsSymlink {
		b = appendVarintField(b, 7, 1)
	}
	if m.Permissions != 0 {
		b = appendVarintField(b, 8, uint64(m.Permissions))
	}
	if m.UID != 0 {
		b = appendVarintField(b, 9, uint64(m.UID))
	}
	if m.GID != 0 {
		b = appendVarintField(b, 10, uint64(m.GID))
	}
	return b
}

func appendFormatFieldRequest(b []byte, r FormatFieldRequest) []byte {
	if r.Entry != nil {
		b = appendMessageField(b, 1, appendEntry(nil, *r.Entry))
	}
	if r.Format != "" {
		b = appendStringField(b, 2, r.Format)
	}
	return b
}

func appendActionRequest(b []byte, r ActionRequest) []byte {
	if r.Action != "" {
		b = appendStringField(b, 1, r.Action)
	}
	return appendStringList(b, 2, r.Args)
}

func appendFieldResponse(b []byte, r FieldResponse) []byte {
	if r.Field != nil {
		b = appendStringField(b, 1, *r.Field)
	}
	return b
}

func appendActionResponse(b []byte, r ActionResponse) []byte {
	if r.Success {
		b = appendVarintField(b, 1, 1)
	}
	if r.Error != nil {
		b = appendStringField(b, 2, *r.Error)
	}
	return b
}

func appendConfigRequest(b []byte, r ConfigRequest) []byte {
	b = appendStringMap(b, 1, r.Config)
	if r.Theme != "" {
		b = appendStringField(b, 2, r.Theme)
	}
	return appendStringList(b, 3, r.Shortcuts)
}

func appendBatchDecorateRequest(b []byte, r BatchDecorateRequest) []byte {
	b = appendEntryList(b, 1, r.Entries)
	if r.Format != "" {
		b = appendStringField(b, 2, r.Format)
	}
	return b
}

func appendAvailableActions(b []byte, r AvailableActionsResponse) []byte {
	for _, a := range r.Actions {
		b = appendMessageField(b, 1, appendActionInfo(nil, a))
	}
	return b
}

func appendActionInfo(b []byte, a ActionInfo) []byte {
	if a.Name != "" {
		b = appendStringField(b, 1, a.Name)
	}
	if a.Usage != "" {
		b = appendStringField(b, 2, a.Usage)
	}
	if a.Description != "" {
		b = appendStringField(b, 3, a.Description)
	}
	return appendStringList(b, 4, a.Examples)
}

// consumeStringField consumes a length-delimited string field, returning -1
// length on malformed input or a wire type mismatch.
func consumeStringField(b []byte, num protowire.Number, typ protowire.Type) (string, int) {
	if typ != protowire.BytesType {
		return "", -1
	}
	return protowire.ConsumeString(b)
}

// knownMessageField reports whether num is one of the schema's
// length-delimited variants. Any other number is an unknown field: those
// are skipped, whereas a known number with the wrong wire type is
// corruption and must surface as a DecodeError.
func knownMessageField(num protowire.Number) bool {
	switch num {
	case fieldDecorate, fieldFormatField, fieldAction, fieldFormatsResponse,
		fieldDecoratedResponse, fieldFieldResponse, fieldActionResponse,
		fieldConfig, fieldBatchDecorate, fieldBatchDecorated,
		fieldAvailableActions:
		return true
	}
	return false
}

// scanFields walks the fields of a submessage payload, invoking visit for
// each one. visit must consume the value and return the remaining buffer.
func scanFields(b []byte, msg protowire.Number, visit func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return decodeErr(msg, protowire.ParseError(n))
		}
		rest, err := visit(num, typ, b[n:])
		if err != nil {
			return err
		}
		b = rest
	}
	return nil
}

// skipField skips one field value of any wire type.
func skipField(msg, num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, decodeErr(msg, protowire.ParseError(n))
	}
	return b[n:], nil
}

func consumeSubString(msg protowire.Number, typ protowire.Type, b []byte) (string, []byte, error) {
	if typ != protowire.BytesType {
		return "", nil, decodeErr(msg, fmt.Errorf("unexpected wire type %d", typ))
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", nil, decodeErr(msg, protowire.ParseError(n))
	}
	return s, b[n:], nil
}

func consumeSubBytes(msg protowire.Number, typ protowire.Type, b []byte) ([]byte, []byte, error) {
	if typ != protowire.BytesType {
		return nil, nil, decodeErr(msg, fmt.Errorf("unexpected wire type %d", typ))
	}
	payload, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, decodeErr(msg, protowire.ParseError(n))
	}
	return payload, b[n:], nil
}

func consumeSubVarint(msg protowire.Number, typ protowire.Type, b []byte) (uint64, []byte, error) {
	if typ != protowire.VarintType {
		return 0, nil, decodeErr(msg, fmt.Errorf("unexpected wire type %d", typ))
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, decodeErr(msg, protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func decodeEntry(payload []byte) (DecoratedEntry, error) {
	var e DecoratedEntry
	err := scanFields(payload, fieldDecorate, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			s, rest, err := consumeSubString(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			e.Path = s
			return rest, nil
		case 2:
			sub, rest, err := consumeSubBytes(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			md, err := decodeMetadata(sub)
			if err != nil {
				return nil, err
			}
			e.Metadata = md
			return rest, nil
		case 3:
			sub, rest, err := consumeSubBytes(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			k, v, err := decodeStringMapEntry(sub)
			if err != nil {
				return nil, err
			}
			if e.CustomFields == nil {
				e.CustomFields = make(map[string]string)
			}
			e.CustomFields[k] = v
			return rest, nil
		}
		return skipField(fieldDecorate, num, typ, b)
	})
	return e, err
}

func decodeMetadata(payload []byte) (EntryMetadata, error) {
	var m EntryMetadata
	err := scanFields(payload, fieldDecorate, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num >= 1 && num <= 10 {
			v, rest, err := consumeSubVarint(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			switch num {
			case 1:
				m.Size = v
			case 2:
				m.Modified = v
			case 3:
				m.Accessed = v
			case 4:
				m.Created = v
			case 5:
				m.IsDir = v != 0
			case 6:
				m.IsFile = v != 0
			case 7:
				m.IsSymlink = v != 0
			case 8:
				m.Permissions = uint32(v)
			case 9:
				m.UID = uint32(v)
			case 10:
				m.GID = uint32(v)
			}
			return rest, nil
		}
		return skipField(fieldDecorate, num, typ, b)
	})
	return m, err
}

func decodeStringMapEntry(payload []byte) (key, value string, err error) {
	err = scanFields(payload, fieldDecorate, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			s, rest, err := consumeSubString(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			key = s
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			value = s
			return rest, nil
		}
		return skipField(fieldDecorate, num, typ, b)
	})
	return key, value, err
}

func decodeFormatFieldRequest(payload []byte) (Body, error) {
	var r FormatFieldRequest
	err := scanFields(payload, fieldFormatField, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			sub, rest, err := consumeSubBytes(fieldFormatField, typ, b)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(sub)
			if err != nil {
				return nil, err
			}
			r.Entry = &e
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldFormatField, typ, b)
			if err != nil {
				return nil, err
			}
			r.Format = s
			return rest, nil
		}
		return skipField(fieldFormatField, num, typ, b)
	})
	return r, err
}

func decodeActionRequest(payload []byte) (Body, error) {
	var r ActionRequest
	err := scanFields(payload, fieldAction, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			s, rest, err := consumeSubString(fieldAction, typ, b)
			if err != nil {
				return nil, err
			}
			r.Action = s
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldAction, typ, b)
			if err != nil {
				return nil, err
			}
			r.Args = append(r.Args, s)
			return rest, nil
		}
		return skipField(fieldAction, num, typ, b)
	})
	return r, err
}

func decodeStringListMessage(payload []byte, msg protowire.Number) ([]string, error) {
	var list []string
	err := scanFields(payload, msg, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			s, rest, err := consumeSubString(msg, typ, b)
			if err != nil {
				return nil, err
			}
			list = append(list, s)
			return rest, nil
		}
		return skipField(msg, num, typ, b)
	})
	return list, err
}

func decodeEntryListMessage(payload []byte, msg protowire.Number) ([]DecoratedEntry, error) {
	var entries []DecoratedEntry
	err := scanFields(payload, msg, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			sub, rest, err := consumeSubBytes(msg, typ, b)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(sub)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
			return rest, nil
		}
		return skipField(msg, num, typ, b)
	})
	return entries, err
}

func decodeFieldResponse(payload []byte) (Body, error) {
	var r FieldResponse
	err := scanFields(payload, fieldFieldResponse, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			s, rest, err := consumeSubString(fieldFieldResponse, typ, b)
			if err != nil {
				return nil, err
			}
			r.Field = &s
			return rest, nil
		}
		return skipField(fieldFieldResponse, num, typ, b)
	})
	return r, err
}

func decodeActionResponse(payload []byte) (Body, error) {
	var r ActionResponse
	err := scanFields(payload, fieldActionResponse, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeSubVarint(fieldActionResponse, typ, b)
			if err != nil {
				return nil, err
			}
			r.Success = v != 0
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldActionResponse, typ, b)
			if err != nil {
				return nil, err
			}
			r.Error = &s
			return rest, nil
		}
		return skipField(fieldActionResponse, num, typ, b)
	})
	return r, err
}

func decodeConfigRequest(payload []byte) (Body, error) {
	var r ConfigRequest
	err := scanFields(payload, fieldConfig, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			sub, rest, err := consumeSubBytes(fieldConfig, typ, b)
			if err != nil {
				return nil, err
			}
			k, v, err := decodeStringMapEntry(sub)
			if err != nil {
				return nil, err
			}
			if r.Config == nil {
				r.Config = make(map[string]string)
			}
			r.Config[k] = v
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldConfig, typ, b)
			if err != nil {
				return nil, err
			}
			r.Theme = s
			return rest, nil
		case 3:
			s, rest, err := consumeSubString(fieldConfig, typ, b)
			if err != nil {
				return nil, err
			}
			r.Shortcuts = append(r.Shortcuts, s)
			return rest, nil
		}
		return skipField(fieldConfig, num, typ, b)
	})
	return r, err
}

func decodeBatchDecorateRequest(payload []byte) (Body, error) {
	var r BatchDecorateRequest
	err := scanFields(payload, fieldBatchDecorate, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			sub, rest, err := consumeSubBytes(fieldBatchDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(sub)
			if err != nil {
				return nil, err
			}
			r.Entries = append(r.Entries, e)
			return rest, nil
		case 2:
			s, rest, err := consumeSubString(fieldBatchDecorate, typ, b)
			if err != nil {
				return nil, err
			}
			r.Format = s
			return rest, nil
		}
		return skipField(fieldBatchDecorate, num, typ, b)
	})
	return r, err
}

func decodeAvailableActions(payload []byte) (Body, error) {
	var r AvailableActionsResponse
	err := scanFields(payload, fieldAvailableActions, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			sub, rest, err := consumeSubBytes(fieldAvailableActions, typ, b)
			if err != nil {
				return nil, err
			}
			a, err := decodeActionInfo(sub)
			if err != nil {
				return nil, err
			}
			r.Actions = append(r.Actions, a)
			return rest, nil
		}
		return skipField(fieldAvailableActions, num, typ, b)
	})
	return r, err
}

func decodeActionInfo(payload []byte) (ActionInfo, error) {
	var a ActionInfo
	err := scanFields(payload, fieldAvailableActions, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1, 2, 3, 4:
			s, rest, err := consumeSubString(fieldAvailableActions, typ, b)
			if err != nil {
				return nil, err
			}
			switch num {
			case 1:
				a.Name = s
			case 2:
				a.Usage = s
			case 3:
				a.Description = s
			case 4:
				a.Examples = append(a.Examples, s)
			}
			return rest, nil
		}
		return skipField(fieldAvailableActions, num, typ, b)
	})
	return a, err
}
