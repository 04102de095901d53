package session

// Prompts and replies sent to the client.
const (
	PromptUsername        = "Username: "
	PromptPassword        = "Password: "
	PromptNewPassword     = "New Password: "
	PromptConfirmPassword = "Confirm Password: "

	MsgInvalidUsername  = "Invalid username, disconnecting...\n"
	MsgIncorrectPass    = "Incorrect password, try again.\n"
	MsgLockout          = "Too many unsuccessful attempts, disconnecting...\n"
	MsgGoodbye          = "Disconnecting...goodbye!\n"
	MsgHello            = "Hello back!\n"
	MsgPasswordMismatch = "Passwords do not match, aborting...\n"
	MsgPasswordChanged  = "Password changed.\n"
	MsgLineTooLong      = "Input line too long, disconnecting...\n"
	MsgUnrecognized     = "Unrecognized command: "
)

// MenuText is the command listing shown after login.
const MenuText = `
Available choices:
  1). Fortune
  2). The answer
  3). Advice
  4). Do nothing
  5). Sing

Other commands:
  Hello  - say hello
  Passwd - change your password
  Menu   - display this menu
  Exit   - disconnect

`

// choices are the canned replies for the numbered menu entries. An empty
// reply sends nothing.
var choices = map[string]string{
	"1": "A cold, dark winter is coming. It will last the rest of your lives.\n",
	"2": "42\n",
	"3": "That seems like a terrible idea.\n",
	"4": "",
	"5": "I'm in a computer and I'm siiiinging!\n",
}
