package logger

// Standard field keys. Use these consistently so log lines can be queried.
const (
	KeyClientIP  = "client_ip"
	KeyUsername  = "username"
	KeySessionID = "session_id"
	KeyState     = "state"
	KeyEvent     = "event"
	KeyAddr      = "addr"
	KeyPath      = "path"
	KeyCount     = "count"
	KeyError     = "error"
)

