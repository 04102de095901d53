package session

// State is a position in the session protocol.
type State int

const (
	AwaitingUsername State = iota
	AwaitingPassword
	Menu
	AwaitingNewPassword
	AwaitingPasswordConfirmation
	Disconnected
)

func (s State) String() string {
	switch s {
	case AwaitingUsername:
		return "awaiting_username"
	case AwaitingPassword:
		return "awaiting_password"
	case Menu:
		return "menu"
	case AwaitingNewPassword:
		return "awaiting_new_password"
	case AwaitingPasswordConfirmation:
		return "awaiting_password_confirmation"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
