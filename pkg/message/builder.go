package message

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserMessageBuilder helps construct AS4 UserMessages
type UserMessageBuilder struct {
	msg *UserMessage
}

// Option represents a functional option for UserMessageBuilder
type Option func(*UserMessageBuilder)

// NewUserMessage creates a new UserMessage with the given options. The
// message id and conversation id are fresh unless overridden.
func NewUserMessage(opts ...Option) *UserMessageBuilder {
	builder := &UserMessageBuilder{
		msg: &UserMessage{
			MessageInfo: MessageInfo{
				Timestamp: time.Now().UTC(),
				MessageId: NewMessageID(),
			},
			PartyInfo: PartyInfo{
				From: Party{Role: RoleInitiator},
				To:   Party{Role: RoleResponder},
			},
			CollaborationInfo: CollaborationInfo{
				ConversationId: uuid.NewString(),
			},
		},
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

// WithMessageId sets the message id
func WithMessageId(id string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.MessageInfo.MessageId = id
	}
}

// WithTimestamp sets the message timestamp
func WithTimestamp(ts time.Time) Option {
	return func(b *UserMessageBuilder) {
		b.msg.MessageInfo.Timestamp = ts.UTC()
	}
}

// WithFrom sets the sender party id
func WithFrom(partyId, partyType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.PartyInfo.From.PartyId = []PartyId{{Type: partyType, Value: partyId}}
	}
}

// WithTo sets the receiver party id
func WithTo(partyId, partyType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.PartyInfo.To.PartyId = []PartyId{{Type: partyType, Value: partyId}}
	}
}

// WithService sets the service and its type
func WithService(service, serviceType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.CollaborationInfo.Service = Service{Type: serviceType, Value: service}
	}
}

// WithAction sets the action
func WithAction(action string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.CollaborationInfo.Action = action
	}
}

// WithConversationId sets a custom conversation ID
func WithConversationId(convId string) Option {
	return func(b *UserMessageBuilder) {
		if convId != "" {
			b.msg.CollaborationInfo.ConversationId = convId
		}
	}
}

// WithAgreementRef sets the agreement reference
func WithAgreementRef(agreementRef string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.CollaborationInfo.AgreementRef = agreementRef
	}
}

// WithMessageProperty adds a message property
func WithMessageProperty(name, value, propType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.MessageProperties = append(b.msg.MessageProperties, Property{
			Name:  name,
			Type:  propType,
			Value: value,
		})
	}
}

// AddPart adds a PartInfo referencing the given content id.
func (b *UserMessageBuilder) AddPart(contentID string, props ...Property) *UserMessageBuilder {
	part := NewPartInfo(contentID)
	part.Properties = append(part.Properties, props...)
	b.msg.PayloadInfo = append(b.msg.PayloadInfo, part)
	return b
}

// Build returns the constructed UserMessage
func (b *UserMessageBuilder) Build() (*UserMessage, error) {
	if len(b.msg.PartyInfo.From.PartyId) == 0 || b.msg.PartyInfo.From.PartyId[0].Value == "" {
		return nil, errors.New("sender party ID is required")
	}
	if len(b.msg.PartyInfo.To.PartyId) == 0 || b.msg.PartyInfo.To.PartyId[0].Value == "" {
		return nil, errors.New("receiver party ID is required")
	}
	if b.msg.CollaborationInfo.Service.Value == "" {
		return nil, errors.New("service is required")
	}
	if b.msg.CollaborationInfo.Action == "" {
		return nil, errors.New("action is required")
	}
	return b.msg, nil
}

// NewMessageID returns a fresh "uuid:" prefixed message id.
func NewMessageID() string {
	return "uuid:" + uuid.NewString()
}

// NewReceipt creates a receipt signal message for a given UserMessage.
// nri may be nil for a plain reception-awareness receipt.
func NewReceipt(refMessageId string, nri *NonRepudiationInformation) *SignalMessage {
	return &SignalMessage{
		MessageInfo: MessageInfo{
			Timestamp:      time.Now().UTC(),
			MessageId:      NewMessageID(),
			RefToMessageId: refMessageId,
		},
		Receipt: &Receipt{NonRepudiation: nri},
	}
}

// NewError creates an error signal message. refMessageId may be empty when
// the message in error could not be identified.
func NewError(refMessageId string, code ErrorCode, detail string) *SignalMessage {
	return &SignalMessage{
		MessageInfo: MessageInfo{
			Timestamp:      time.Now().UTC(),
			MessageId:      NewMessageID(),
			RefToMessageId: refMessageId,
		},
		Errors: []Error{code.Build(refMessageId, detail)},
	}
}
