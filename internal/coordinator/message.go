package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/phishguard/internal/model"
)

// MessageKind selects the operation a Message requests.
type MessageKind string

// Message kinds.
const (
	MessageScan           MessageKind = "scan"
	MessageSaveCredential MessageKind = "save_credential"
	MessageGetStatus      MessageKind = "get_status"
	MessageNavigate       MessageKind = "navigate"
	MessageCloseTab       MessageKind = "close_tab"
)

// messageAliases maps action names used by browser-extension clients to
// message kinds.
var messageAliases = map[string]MessageKind{
	"checkphishing":  MessageScan,
	"detectphishing": MessageScan,
	"scanurl":        MessageScan,
	"saveapikey":     MessageSaveCredential,
	"save_api_key":   MessageSaveCredential,
	"getstatus":      MessageGetStatus,
}

// ParseMessageKind converts a wire name into a MessageKind.
func ParseMessageKind(s string) (MessageKind, error) {
	name := strings.TrimSpace(s)
	switch kind := MessageKind(strings.ToLower(name)); kind {
	case MessageScan, MessageSaveCredential, MessageGetStatus, MessageNavigate, MessageCloseTab:
		return kind, nil
	}
	if kind, ok := messageAliases[strings.ToLower(name)]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("unknown message kind %q", s)
}

// UnmarshalJSON accepts the canonical names and the extension aliases.
func (k *MessageKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseMessageKind(s)
	if err != nil {
		// Unknown kinds are kept and rejected by Handle so the sender
		// receives a proper Response.
		*k = MessageKind(s)
		return nil //nolint:nilerr // rejected in Handle
	}
	*k = kind
	return nil
}

// Message is a request to the coordinator from a probe or UI surface.
// Only the fields relevant to Kind are read.
type Message struct {
	// ID is echoed in the Response. Handle assigns none.
	ID string `json:"id,omitempty"`

	// Kind selects the operation. The JSON field is "kind"; "action" is
	// accepted as an alias.
	Kind MessageKind `json:"kind"`

	// TabID is used by scan, get_status, navigate and close_tab.
	TabID model.TabID `json:"tab_id,omitempty"`

	// URL is used by scan and navigate.
	URL string `json:"url,omitempty"`

	// Origin is used by scan.
	Origin model.Origin `json:"origin"`

	// APIKey is used by save_credential.
	APIKey string `json:"api_key,omitempty"`
}

// UnmarshalJSON decodes a Message, accepting "action" for "kind" and
// "apikey" for "api_key".
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		Action MessageKind `json:"action"`
		APIKey string      `json:"apikey"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	if m.Kind == "" {
		m.Kind = aux.Action
	}
	if m.APIKey == "" {
		m.APIKey = aux.APIKey
	}
	return nil
}

// Response answers a Message.
type Response struct {
	// ID echoes Message.ID.
	ID string `json:"id,omitempty"`

	// OK is true when the operation succeeded.
	OK bool `json:"ok"`

	// Result is set for scan.
	Result *model.ScanResult `json:"result,omitempty"`

	// Status is set for get_status.
	Status *TabStatus `json:"status,omitempty"`

	// Error is the user-facing failure message.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies the failure.
	ErrorKind model.ErrorKind `json:"error_kind,omitempty"`
}

// APIKeySaved is the confirmation text for a saved key.
const APIKeySaved = "API Key saved!"

// Handle dispatches msg to the matching operation. Unknown kinds are
// rejected with model.KindInvalidInput.
func (c *Coordinator) Handle(ctx context.Context, msg Message) Response {
	resp := Response{ID: msg.ID}

	switch msg.Kind {
	case MessageScan:
		result, err := c.Classify(ctx, model.NewScanRequest(msg.TabID, msg.URL, msg.Origin))
		resp.Result = &result
		if err != nil {
			return failure(resp, err)
		}
	case MessageSaveCredential:
		if err := c.SaveCredential(ctx, msg.APIKey); err != nil {
			return failure(resp, err)
		}
	case MessageGetStatus:
		if !msg.TabID.Valid() {
			return failure(resp, model.NewScanError(model.KindInvalidInput, fmt.Errorf("invalid tab id %d", msg.TabID)))
		}
		status := c.Status(msg.TabID)
		resp.Status = &status
	case MessageNavigate:
		if err := c.Navigate(msg.TabID, msg.URL); err != nil {
			return failure(resp, err)
		}
	case MessageCloseTab:
		if !msg.TabID.Valid() {
			return failure(resp, model.NewScanError(model.KindInvalidInput, fmt.Errorf("invalid tab id %d", msg.TabID)))
		}
		c.CloseTab(msg.TabID)
	default:
		return failure(resp, model.NewScanError(model.KindInvalidInput, fmt.Errorf("unknown message kind %q", msg.Kind)))
	}

	resp.OK = true
	return resp
}

// failure fills resp from err.
func failure(resp Response, err error) Response {
	resp.OK = false
	resp.ErrorKind = model.KindOf(err)
	var se *model.ScanError
	if errors.As(err, &se) {
		resp.Error = se.Kind.Message(se.StatusCode)
	} else {
		resp.Error = err.Error()
	}
	return resp
}
