package network

// 消息ID约定：1xx 为客户端意图，3xx 为服务器事件
const (
	MsgTypeHeartbeat = 1

	// client -> server
	MsgTypeJoinRoom      = 101
	MsgTypePlayerMove    = 102
	MsgTypeCollectItem   = 103
	MsgTypeAttemptPuzzle = 104
	MsgTypeUseHint       = 105
	MsgTypeChat          = 106

	// server -> client
	MsgTypeJoinAck          = 301
	MsgTypePlayerJoined     = 302
	MsgTypePlayerMoved      = 303
	MsgTypePlayerLeft       = 304
	MsgTypeInventoryUpdated = 305
	MsgTypePuzzleSolved     = 306
	MsgTypePuzzleFailed     = 307
	MsgTypeEscapeSuccess    = 308
	MsgTypeHintUsed         = 309
	MsgTypeChatMessage      = 310
	MsgTypeServerMessage    = 311
)
