package protocol

// Wire constants for the chat protocol.
const (
	Magic      uint32 = 0x43484154 // "CHAT"
	Version    uint16 = 1
	HeaderSize uint16 = 32
)

// Flags carried in the frame header.
const (
	FlagResponse uint32 = 0x02
	FlagError    uint32 = 0x04
	FlagPush     uint32 = 0x08
)

// MessageType identifies one kind of wire message.
type MessageType uint32

// The closed set of message kinds.
const (
	MessageProbe         MessageType = 1
	MessageProbeAck      MessageType = 2
	MessageLogin         MessageType = 3
	MessageCreateAccount MessageType = 4
	MessageCreateTopic   MessageType = 5
	MessageListTopics    MessageType = 6
	MessageTopicItem     MessageType = 7
	MessageEndOfList     MessageType = 8
	MessageJoinTopic     MessageType = 9
	MessageLeaveTopic    MessageType = 10
	MessageChatTopic     MessageType = 11
	MessageChatPrivate   MessageType = 12
	MessageDisconnect    MessageType = 13
	MessageExit          MessageType = 14
	MessageOk            MessageType = 15
	MessageError         MessageType = 16
)

// FieldType identifies the value encoding of one TLV field.
type FieldType uint8

const (
	FieldUint8  FieldType = 1
	FieldUint16 FieldType = 2
	FieldUint32 FieldType = 3
	FieldUint64 FieldType = 4
	FieldBool   FieldType = 5
	FieldString FieldType = 6
	FieldBytes  FieldType = 7
)

// Field IDs used by chat payloads.
const (
	FieldIDLogin     uint16 = 1
	FieldIDPassword  uint16 = 2
	FieldIDTopicID   uint16 = 3
	FieldIDTopicName uint16 = 4
	FieldIDBody      uint16 = 5
	FieldIDUser      uint16 = 6
	FieldIDTarget    uint16 = 7
	FieldIDTimestamp uint16 = 8
	FieldIDReason    uint16 = 9
	FieldIDCode      uint16 = 10
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType MessageType
	Flags       uint32
	PayloadLen  uint64
}

// Field is one TLV payload field.
type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

// Message is one complete wire message.
type Message struct {
	Header Header
	Fields []Field
}

// Limits constrains decode memory use for untrusted input.
type Limits struct {
	MaxPayloadBytes uint64
}

// DefaultLimits returns the decode limits used by server and client.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1 * 1024 * 1024}
}

// IsResponse reports whether the response flag is set.
func (m *Message) IsResponse() bool { return m.Header.Flags&FlagResponse != 0 }

// IsError reports whether the error flag is set.
func (m *Message) IsError() bool { return m.Header.Flags&FlagError != 0 }

// IsPush reports whether the push flag is set.
func (m *Message) IsPush() bool { return m.Header.Flags&FlagPush != 0 }
