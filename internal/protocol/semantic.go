package protocol

import "fmt"

// Requirement declares one required field and its type for a message kind.
type Requirement struct {
	ID   uint16
	Type FieldType
}

// ValidationError indicates a message violated its schema.
type ValidationError struct {
	MessageType MessageType
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("protocol: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("protocol: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[MessageType][]Requirement{
	MessageProbe:         {},
	MessageProbeAck:      {},
	MessageLogin:         {{FieldIDLogin, FieldString}, {FieldIDPassword, FieldString}},
	MessageCreateAccount: {{FieldIDLogin, FieldString}, {FieldIDPassword, FieldString}},
	MessageCreateTopic:   {{FieldIDTopicName, FieldString}},
	MessageListTopics:    {},
	MessageTopicItem:     {{FieldIDTopicID, FieldUint64}, {FieldIDTopicName, FieldString}},
	MessageEndOfList:     {},
	MessageJoinTopic:     {{FieldIDTopicID, FieldUint64}},
	MessageLeaveTopic:    {{FieldIDTopicID, FieldUint64}},
	MessageChatTopic:     {{FieldIDTopicID, FieldUint64}, {FieldIDBody, FieldString}},
	MessageChatPrivate:   {{FieldIDTarget, FieldString}, {FieldIDBody, FieldString}},
	MessageDisconnect:    {},
	MessageExit:          {},
	MessageOk:            {},
	MessageError:         {{FieldIDReason, FieldString}, {FieldIDCode, FieldUint32}},
}

// Validate enforces required fields and their types for a message type.
// Unknown fields are ignored so the payload stays forward-compatible.
func Validate(msg *Message) error {
	if msg == nil {
		return ErrInvalidLength
	}
	reqs, ok := requirements[msg.Header.MessageType]
	if !ok {
		return ErrUnknownMessageType
	}
	for _, req := range reqs {
		field, ok := GetField(msg.Fields, req.ID)
		if !ok {
			return ValidationError{MessageType: msg.Header.MessageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if field.Type != req.Type {
			return ValidationError{MessageType: msg.Header.MessageType, FieldID: req.ID, Reason: "field type mismatch"}
		}
	}
	return nil
}
