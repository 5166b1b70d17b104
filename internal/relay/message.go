package relay

import (
	"strings"

	"github.com/prixcenter/wlink/pkg/common"
)

// MessageBody extracts the text body from a message, walking the known
// content shapes in priority order. Empty means the message carries no
// relayable text and must be dropped.
func MessageBody(m *MessageContent) string {
	if m == nil {
		return ""
	}
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "" {
		return m.ExtendedTextMessage.Text
	}
	if m.ImageMessage != nil && m.ImageMessage.Caption != "" {
		return m.ImageMessage.Caption
	}
	if m.VideoMessage != nil && m.VideoMessage.Caption != "" {
		return m.VideoMessage.Caption
	}
	if m.ButtonsResponseMessage != nil && m.ButtonsResponseMessage.SelectedDisplayText != "" {
		return m.ButtonsResponseMessage.SelectedDisplayText
	}
	if m.ListResponseMessage != nil {
		if m.ListResponseMessage.Title != "" {
			return m.ListResponseMessage.Title
		}
		if m.ListResponseMessage.SingleSelectReply != nil {
			return m.ListResponseMessage.SingleSelectReply.SelectedRowID
		}
	}
	return ""
}

// PlaceholderContactName builds the generic contact name used when the
// sender's display name is unknown.
func PlaceholderContactName(phone string) string {
	return "WhatsApp User " + common.PhoneLast4(phone)
}

const instanceTagPrefix = "whatsapp-instance-"

// InstanceTag is the contact tag binding a contact to an instance.
func InstanceTag(instanceName string) string {
	return instanceTagPrefix + instanceName
}

// InstanceFromTags extracts the instance name from a contact's tags,
// empty when no instance tag is present.
func InstanceFromTags(tags []string) string {
	for _, tag := range tags {
		if strings.HasPrefix(tag, instanceTagPrefix) {
			return strings.TrimPrefix(tag, instanceTagPrefix)
		}
	}
	return ""
}
