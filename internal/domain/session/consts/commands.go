// Package consts contains constants for the session domain
package consts

// Command represents a control bot command
type Command struct {
	Name        string
	Usage       string
	Description string
	AdminOnly   bool
}

// Control bot commands
var (
	CommandStart      = Command{Name: "start", Description: "Show the welcome message"}
	CommandHelp       = Command{Name: "help", Description: "Show the list of commands"}
	CommandLogin      = Command{Name: "login", Usage: "<phone>", Description: "Send a login code to a phone number"}
	CommandVerify     = Command{Name: "verify", Usage: "<code>", Description: "Finish the login with the received code"}
	CommandPassword   = Command{Name: "password", Usage: "<password>", Description: "Send the two-step verification password"}
	CommandQRLogin    = Command{Name: "qrlogin", Description: "Log in by scanning a QR code"}
	CommandLogout     = Command{Name: "logout", Usage: "<phone>", Description: "Log an account out and delete its session"}
	CommandList       = Command{Name: "list", Description: "List your accounts"}
	CommandResetAll   = Command{Name: "resetall", Description: "Log out every session"}
	CommandRestart    = Command{Name: "restart", Description: "Save state and reconnect your accounts"}
	CommandReconnect  = Command{Name: "reconnect", Description: "Reconnect disconnected sessions"}
	CommandGetSession = Command{Name: "getsession", Description: "Download every session file", AdminOnly: true}
)

// AllCommands contains all available commands for the help message
var AllCommands = []Command{
	CommandStart,
	CommandHelp,
	CommandLogin,
	CommandVerify,
	CommandPassword,
	CommandQRLogin,
	CommandLogout,
	CommandList,
	CommandResetAll,
	CommandRestart,
	CommandReconnect,
	CommandGetSession,
}
