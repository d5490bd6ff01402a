package network

// 客户端 -> 服务端
const (
	EventAuthenticate       = "authenticate"
	EventJoinPublicGame     = "join_public_game"
	EventCreatePrivateRoom  = "create_private_room"
	EventJoinPrivateRoom    = "join_private_room"
	EventLeaveRoom          = "leave_room"
	EventLobbyChat          = "lobby_chat"
	EventPlayerReady        = "player_ready"
	EventUpdateRoomSettings = "update_room_settings"
	EventStartGame          = "start_game"
	EventSelectWord         = "select_word"
	EventDrawingStroke      = "drawing_stroke"
	EventCanvasClear        = "canvas_clear"
	EventCanvasUndo         = "canvas_undo"
	EventChatMessage        = "chat_message"
	EventGuessWord          = "guess_word"
	EventMobileEvent        = "mobile_event"
	EventConnectionQuality  = "connection_quality"
	EventRequestCanvasSync  = "request_canvas_sync"
	EventPing               = "ping"
)

// 服务端 -> 客户端
const (
	EventAuthenticated       = "authenticated"
	EventRoomJoined          = "room_joined"
	EventRoomCreated         = "room_created"
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventPlayerDisconnected  = "player_disconnected"
	EventPlayerReconnected   = "player_reconnected"
	EventHostChanged         = "host_changed"
	EventRoomSettingsUpdated = "room_settings_updated"
	EventLobbyMessage        = "lobby_message"
	EventPlayerReadyChanged  = "player_ready_changed"
	EventGameStarting        = "game_starting"
	EventGameStarted         = "game_started"
	EventGamePaused          = "game_paused"
	EventGameResumed         = "game_resumed"
	EventTurnStarting        = "turn_starting"
	EventTurnStarted         = "turn_started"
	EventWordSelection       = "word_selection"
	EventTurnEnded           = "turn_ended"
	EventRoundEnded          = "round_ended"
	EventGameEnded           = "game_ended"
	EventCanvasCleared       = "canvas_cleared"
	EventCanvasState         = "canvas_state"
	EventPlayerGuessed       = "player_guessed"
	EventCorrectGuess        = "correct_guess"
	EventCloseGuess          = "close_guess"
	EventTimerUpdate         = "timer_update"
	EventHintRevealed        = "hint_revealed"
	EventScoreUpdate         = "score_update"
	EventError               = "error"
	EventRateLimited         = "rate_limited"
	EventMobileOptimization  = "mobile_optimization"
	EventPong                = "pong"
	EventRoomClosed          = "room_closed"
	EventLeftRoom            = "left_room"
)
