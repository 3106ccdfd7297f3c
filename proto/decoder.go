// Package proto decodes protobuf envelope bodies dynamically from a
// directory of .proto files, so tests can assert on binary payloads without
// generated code.
package proto

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/epalmerini/burrow/envelope"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
)

// Decoder handles dynamic protobuf message decoding.
type Decoder struct {
	messageTypes map[string]*desc.MessageDescriptor
	allMessages  []*desc.MessageDescriptor

	// Warnings collects per-file parse failures from NewDecoder; the
	// decoder still works with whatever parsed.
	Warnings []string
}

// NewDecoder creates a decoder from a directory of .proto files. Files that
// fail to parse are skipped and reported in Warnings; it is an error only if
// no file parses at all.
func NewDecoder(protoPath string) (*Decoder, error) {
	var protoFiles []string
	err := filepath.Walk(protoPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".proto") {
			relPath, err := filepath.Rel(protoPath, path)
			if err != nil {
				relPath = path
			}
			protoFiles = append(protoFiles, relPath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk proto path: %w", err)
	}
	if len(protoFiles) == 0 {
		return nil, fmt.Errorf("no .proto files found in %s", protoPath)
	}

	parser := protoparse.Parser{
		ImportPaths:           []string{protoPath},
		IncludeSourceCodeInfo: true,
	}

	d := &Decoder{messageTypes: make(map[string]*desc.MessageDescriptor)}
	for _, pf := range protoFiles {
		fds, err := parser.ParseFiles(pf)
		if err != nil {
			d.Warnings = append(d.Warnings, fmt.Sprintf("%s: %v", pf, err))
			continue
		}
		for _, fd := range fds {
			for _, md := range fd.GetMessageTypes() {
				d.messageTypes[md.GetName()] = md
				d.messageTypes[md.GetFullyQualifiedName()] = md
				d.allMessages = append(d.allMessages, md)
			}
		}
	}

	if len(d.allMessages) == 0 {
		return nil, fmt.Errorf("no message types parsed from %s: %s", protoPath, strings.Join(d.Warnings, "; "))
	}
	return d, nil
}

// DecodeEnvelope decodes env's body, using the destination key as a type
// hint (e.g. "orders.order.created" prefers a message named OrderCreated).
func (d *Decoder) DecodeEnvelope(env *envelope.Envelope) (map[string]any, error) {
	return d.DecodeWithHint(env.Body, env.Destination)
}

// Decode attempts to decode protobuf bytes using known message types,
// returning decoded fields as a map.
func (d *Decoder) Decode(data []byte) (map[string]any, error) {
	return d.DecodeWithHint(data, "")
}

// DecodeWithHint decodes using a destination-key hint to pick the right
// message type. Every known type is tried; the candidate populating the most
// fields wins, with a strong boost for a name matching the hint.
func (d *Decoder) DecodeWithHint(data []byte, destination string) (map[string]any, error) {
	if d == nil || len(d.allMessages) == 0 {
		return nil, fmt.Errorf("no message types loaded")
	}

	typeHint := destinationToTypeHint(destination)

	var bestMatch *dynamic.Message
	var bestMatchName string
	bestScore := 0

	for _, md := range d.allMessages {
		msg := dynamic.NewMessage(md)
		if err := msg.Unmarshal(data); err != nil {
			continue
		}

		score := countPopulatedFields(msg)
		name := md.GetName()
		if typeHint != "" && strings.EqualFold(name, typeHint) {
			score += 1000
		}

		if score > bestScore {
			bestScore = score
			bestMatch = msg
			bestMatchName = name
		}
	}

	if bestMatch == nil {
		return nil, fmt.Errorf("could not decode with any known message type")
	}

	result := messageToMap(bestMatch)
	result["__type"] = bestMatchName
	return result, nil
}

// DecodeAs decodes using a specific message type name.
func (d *Decoder) DecodeAs(data []byte, typeName string) (map[string]any, error) {
	md, ok := d.messageTypes[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", typeName)
	}

	msg := dynamic.NewMessage(md)
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal: %w", err)
	}

	result := messageToMap(msg)
	result["__type"] = typeName
	return result, nil
}

// Types returns all known message type names.
func (d *Decoder) Types() []string {
	var types []string
	for name := range d.messageTypes {
		types = append(types, name)
	}
	return types
}

// destinationToTypeHint converts the last two destination-key segments to a
// PascalCase type name, e.g. "orders.order.created" -> "OrderCreated" and
// "shipping.administrative_area.updated" -> "AdministrativeAreaUpdated".
func destinationToTypeHint(destination string) string {
	parts := strings.Split(destination, ".")
	if len(parts) < 2 {
		return ""
	}
	entity := parts[len(parts)-2]
	action := parts[len(parts)-1]
	return pascalCase(entity) + pascalCase(action)
}

// pascalCase upper-cases the first letter of each underscore-separated word.
func pascalCase(s string) string {
	var b strings.Builder
	for _, word := range strings.Split(strings.ToLower(s), "_") {
		for i, r := range word {
			if i == 0 {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func countPopulatedFields(msg *dynamic.Message) int {
	count := 0
	for _, fd := range msg.GetKnownFields() {
		if msg.HasField(fd) {
			count++
		}
	}
	return count
}

func messageToMap(msg *dynamic.Message) map[string]any {
	result := make(map[string]any)
	for _, fd := range msg.GetKnownFields() {
		if !msg.HasField(fd) {
			continue
		}
		result[fd.GetName()] = convertValue(msg.GetField(fd))
	}
	return result
}

func convertValue(val any) any {
	switch v := val.(type) {
	case *dynamic.Message:
		return messageToMap(v)
	case []byte:
		// Printable bytes come back as a string, otherwise hex
		if isPrintable(v) {
			return string(v)
		}
		return fmt.Sprintf("0x%x", v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = convertValue(item)
		}
		return result
	default:
		return v
	}
}

func isPrintable(data []byte) bool {
	for _, b := range data {
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}
