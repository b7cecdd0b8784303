package protocol

// MessageType определяет тип реплицируемого сообщения
type MessageType uint8

// Определение констант для типов сообщений
const (
	MsgUnknown MessageType = iota
	MsgSnapshot
	MsgChunkData
	MsgBlockUpdate
	MsgStateUpdate
	MsgChunkUnload
	MsgAck
)

var messageTypeNames = map[MessageType]string{
	MsgUnknown:     "Unknown",
	MsgSnapshot:    "Snapshot",
	MsgChunkData:   "ChunkData",
	MsgBlockUpdate: "BlockUpdate",
	MsgStateUpdate: "StateUpdate",
	MsgChunkUnload: "ChunkUnload",
	MsgAck:         "Ack",
}

// String возвращает имя типа; оно же используется как тип события шины
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseMessageType восстанавливает тип по имени
func ParseMessageType(name string) MessageType {
	for t, n := range messageTypeNames {
		if n == name {
			return t
		}
	}
	return MsgUnknown
}
