package relay

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Single JSON codec for every webhook payload, configured once at
// process start.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Gateway event kinds handled by the bridge. Everything else is ignored.
const (
	EventConnectionUpdate = "connection.update"
	EventMessagesUpsert   = "messages.upsert"
)

// GatewayEvent is one webhook delivery from the gateway. Data stays raw
// until the event kind selects its shape.
type GatewayEvent struct {
	Event       string              `json:"event"`
	Instance    string              `json:"instance"`
	Data        jsoniter.RawMessage `json:"data"`
	Sender      string              `json:"sender"`
	Destination string              `json:"destination"`
	Timestamp   jsoniter.RawMessage `json:"timestamp"`
}

func DecodeGatewayEvent(raw []byte) (*GatewayEvent, error) {
	var evt GatewayEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, errors.Wrap(err, "decode gateway event")
	}
	return &evt, nil
}

// ConnectionData is the payload of a connection.update event. Wuid is
// the connected device's own chat id, present after authorization.
type ConnectionData struct {
	State             string `json:"state"`
	Wuid              string `json:"wuid"`
	ProfilePictureURL string `json:"profilePictureUrl"`
	StatusReason      int    `json:"statusReason"`
}

func (e *GatewayEvent) ConnectionData() (*ConnectionData, error) {
	var data ConnectionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, errors.Wrap(err, "decode connection data")
	}
	return &data, nil
}

// MessageKey identifies one WhatsApp message within a chat.
type MessageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageContent holds the known message shapes a body can live in.
type MessageContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage *struct {
		Caption string `json:"caption"`
	} `json:"imageMessage"`
	VideoMessage *struct {
		Caption string `json:"caption"`
	} `json:"videoMessage"`
	ButtonsResponseMessage *struct {
		SelectedDisplayText string `json:"selectedDisplayText"`
	} `json:"buttonsResponseMessage"`
	ListResponseMessage *struct {
		Title             string `json:"title"`
		SingleSelectReply *struct {
			SelectedRowID string `json:"selectedRowId"`
		} `json:"singleSelectReply"`
	} `json:"listResponseMessage"`
}

// MessageData is the payload of a messages.upsert event. InstanceID is
// the gateway-assigned GUID used as a secondary instance resolution key.
type MessageData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName"`
	Message          *MessageContent `json:"message"`
	InstanceID       string          `json:"instanceId"`
	MessageTimestamp int64           `json:"messageTimestamp"`
}

func (e *GatewayEvent) MessageData() (*MessageData, error) {
	var data MessageData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, errors.Wrap(err, "decode message data")
	}
	return &data, nil
}

// PlatformMessage is one outbound-message webhook from the platform.
type PlatformMessage struct {
	LocationID             string   `json:"locationId"`
	ContactID              string   `json:"contactId"`
	Phone                  string   `json:"phone"`
	Message                string   `json:"message"`
	MessageID              string   `json:"messageId"`
	ConversationProviderID string   `json:"conversationProviderId"`
	UserID                 string   `json:"userId"`
	Attachments            []string `json:"attachments"`
}

func DecodePlatformMessage(raw []byte) (*PlatformMessage, error) {
	var msg PlatformMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, "decode platform message")
	}
	return &msg, nil
}
