package protocol

import "time"

// Error codes carried by MessageError replies.
const (
	CodeBadCredentials   uint32 = 1
	CodeLoginExists      uint32 = 2
	CodeTopicExists      uint32 = 3
	CodeNotAuthenticated uint32 = 4
	CodeAlreadyJoined    uint32 = 5
	CodeInternal         uint32 = 6
)

// NewProbe builds the client handshake liveness probe.
func NewProbe(id uint64) *Message {
	return &Message{Header: Header{MessageID: id, MessageType: MessageProbe}}
}

// NewProbeAck builds the server handshake acknowledgement.
func NewProbeAck(id uint64) *Message {
	return &Message{Header: Header{MessageID: id, MessageType: MessageProbeAck, Flags: FlagResponse}}
}

// NewLogin builds a login request.
func NewLogin(id uint64, login, password string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageLogin},
		Fields: []Field{
			NewFieldString(FieldIDLogin, login),
			NewFieldString(FieldIDPassword, password),
		},
	}
}

// NewCreateAccount builds an account creation request.
func NewCreateAccount(id uint64, login, password string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageCreateAccount},
		Fields: []Field{
			NewFieldString(FieldIDLogin, login),
			NewFieldString(FieldIDPassword, password),
		},
	}
}

// NewCreateTopic builds a topic creation request.
func NewCreateTopic(id uint64, name string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageCreateTopic},
		Fields: []Field{NewFieldString(FieldIDTopicName, name)},
	}
}

// NewListTopics builds a topic listing request.
func NewListTopics(id uint64) *Message {
	return &Message{Header: Header{MessageID: id, MessageType: MessageListTopics}}
}

// NewTopicItem builds one element of a topic listing response stream.
func NewTopicItem(reqID, topicID uint64, name string) *Message {
	return &Message{
		Header: Header{MessageID: reqID, MessageType: MessageTopicItem, Flags: FlagResponse},
		Fields: []Field{
			NewFieldUint64(FieldIDTopicID, topicID),
			NewFieldString(FieldIDTopicName, name),
		},
	}
}

// NewEndOfList terminates a topic listing response stream.
func NewEndOfList(reqID uint64) *Message {
	return &Message{Header: Header{MessageID: reqID, MessageType: MessageEndOfList, Flags: FlagResponse}}
}

// NewJoinTopic builds a topic join request.
func NewJoinTopic(id, topicID uint64) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageJoinTopic},
		Fields: []Field{NewFieldUint64(FieldIDTopicID, topicID)},
	}
}

// NewLeaveTopic builds a topic leave request.
func NewLeaveTopic(id, topicID uint64) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageLeaveTopic},
		Fields: []Field{NewFieldUint64(FieldIDTopicID, topicID)},
	}
}

// NewChatTopic builds an inbound topic chat message.
func NewChatTopic(id, topicID uint64, body string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageChatTopic},
		Fields: []Field{
			NewFieldUint64(FieldIDTopicID, topicID),
			NewFieldString(FieldIDBody, body),
		},
	}
}

// NewChatPrivate builds an inbound private chat message.
func NewChatPrivate(id uint64, target, body string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageChatPrivate},
		Fields: []Field{
			NewFieldString(FieldIDTarget, target),
			NewFieldString(FieldIDBody, body),
		},
	}
}

// NewDisconnect builds a logout request.
func NewDisconnect(id uint64) *Message {
	return &Message{Header: Header{MessageID: id, MessageType: MessageDisconnect}}
}

// NewExit builds a connection close request.
func NewExit(id uint64) *Message {
	return &Message{Header: Header{MessageID: id, MessageType: MessageExit}}
}

// NewOk builds a success reply echoing the request id.
func NewOk(reqID uint64, fields ...Field) *Message {
	return &Message{
		Header: Header{MessageID: reqID, MessageType: MessageOk, Flags: FlagResponse},
		Fields: fields,
	}
}

// NewTopicAck builds a success reply carrying topic identity, used for
// create/join/leave acknowledgements.
func NewTopicAck(reqID, topicID uint64, name string) *Message {
	return NewOk(reqID,
		NewFieldUint64(FieldIDTopicID, topicID),
		NewFieldString(FieldIDTopicName, name),
	)
}

// NewError builds an error reply echoing the request id.
func NewError(reqID uint64, code uint32, reason string) *Message {
	return &Message{
		Header: Header{MessageID: reqID, MessageType: MessageError, Flags: FlagResponse | FlagError},
		Fields: []Field{
			NewFieldString(FieldIDReason, reason),
			NewFieldUint32(FieldIDCode, code),
		},
	}
}

// NewTopicPush builds a server-initiated topic chat delivery.
func NewTopicPush(id, topicID uint64, user string, at time.Time, body string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageChatTopic, Flags: FlagPush},
		Fields: []Field{
			NewFieldUint64(FieldIDTopicID, topicID),
			NewFieldString(FieldIDUser, user),
			NewFieldUint64(FieldIDTimestamp, uint64(at.UnixMilli())),
			NewFieldString(FieldIDBody, body),
		},
	}
}

// NewPrivatePush builds a server-initiated private chat delivery.
func NewPrivatePush(id uint64, from string, at time.Time, body string) *Message {
	return &Message{
		Header: Header{MessageID: id, MessageType: MessageChatPrivate, Flags: FlagPush},
		Fields: []Field{
			NewFieldString(FieldIDUser, from),
			NewFieldUint64(FieldIDTimestamp, uint64(at.UnixMilli())),
			NewFieldString(FieldIDBody, body),
		},
	}
}

// Credentials extracts login and password from a Login or CreateAccount message.
func Credentials(msg *Message) (login, password string, err error) {
	loginField, _ := GetField(msg.Fields, FieldIDLogin)
	if login, err = loginField.String(); err != nil {
		return "", "", err
	}
	passwordField, _ := GetField(msg.Fields, FieldIDPassword)
	if password, err = passwordField.String(); err != nil {
		return "", "", err
	}
	return login, password, nil
}

// TopicID extracts the topic id field.
func TopicID(msg *Message) (uint64, error) {
	field, ok := GetField(msg.Fields, FieldIDTopicID)
	if !ok {
		return 0, ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDTopicID, Reason: "missing required field"}
	}
	return field.Uint64()
}

// TopicName extracts the topic name field.
func TopicName(msg *Message) (string, error) {
	field, ok := GetField(msg.Fields, FieldIDTopicName)
	if !ok {
		return "", ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDTopicName, Reason: "missing required field"}
	}
	return field.String()
}

// Body extracts the chat body field.
func Body(msg *Message) (string, error) {
	field, ok := GetField(msg.Fields, FieldIDBody)
	if !ok {
		return "", ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDBody, Reason: "missing required field"}
	}
	return field.String()
}

// Target extracts the private message target user field.
func Target(msg *Message) (string, error) {
	field, ok := GetField(msg.Fields, FieldIDTarget)
	if !ok {
		return "", ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDTarget, Reason: "missing required field"}
	}
	return field.String()
}

// User extracts the originating user field from a push.
func User(msg *Message) (string, error) {
	field, ok := GetField(msg.Fields, FieldIDUser)
	if !ok {
		return "", ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDUser, Reason: "missing required field"}
	}
	return field.String()
}

// Timestamp extracts the delivery timestamp from a push.
func Timestamp(msg *Message) (time.Time, error) {
	field, ok := GetField(msg.Fields, FieldIDTimestamp)
	if !ok {
		return time.Time{}, ValidationError{MessageType: msg.Header.MessageType, FieldID: FieldIDTimestamp, Reason: "missing required field"}
	}
	ms, err := field.Uint64()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)), nil
}

// ErrorFields extracts code and reason from an error reply.
func ErrorFields(msg *Message) (code uint32, reason string, err error) {
	codeField, _ := GetField(msg.Fields, FieldIDCode)
	if code, err = codeField.Uint32(); err != nil {
		return 0, "", err
	}
	reasonField, _ := GetField(msg.Fields, FieldIDReason)
	if reason, err = reasonField.String(); err != nil {
		return 0, "", err
	}
	return code, reason, nil
}
