package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/dapen17/vps1/internal/domain"
	"github.com/dapen17/vps1/internal/domain/session/consts"
	"github.com/dapen17/vps1/internal/domain/session/entities"
	pkgerrors "github.com/dapen17/vps1/pkg/errors"
)

const welcomeMessage = "👋 Welcome to the multi-account automation bot!\n\n" +
	"Attach a Telegram account with:\n" +
	"<code>/login &lt;phone&gt;</code> (example: /login +628123456789)\n" +
	"or scan a QR code with /qrlogin.\n\n" +
	"Send /help for the list of commands."

// commandArgs returns the text after the command word, /cmd@bot included
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

func formatHelp(admin bool) string {
	var b strings.Builder
	b.WriteString("📖 <b>Commands</b>\n")
	for _, c := range consts.AllCommands {
		if c.AdminOnly && !admin {
			continue
		}
		b.WriteString("/" + c.Name)
		if c.Usage != "" {
			b.WriteString(" " + html.EscapeString(c.Usage))
		}
		b.WriteString(" - " + c.Description + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatList(list entities.SessionList) string {
	var b strings.Builder
	if len(list.Accounts) == 0 {
		b.WriteString("⚠️ You have no logged in accounts.\n")
	} else {
		b.WriteString("📋 <b>Your accounts</b>\n")
		for _, a := range list.Accounts {
			b.WriteString(formatAccount(a) + "\n")
		}
	}
	fmt.Fprintf(&b, "Sessions in use: %d/%d", list.Total, list.Max)
	return b.String()
}

func formatAccount(a domain.Account) string {
	status := "🔴"
	if a.Connected {
		status = "🟢"
	}
	line := status + " +" + html.EscapeString(a.Phone)
	if a.Username != "" {
		line += " (@" + html.EscapeString(a.Username) + ")"
	}
	return line
}

func formatAttached(a domain.Account) string {
	name := "+" + html.EscapeString(a.Phone)
	if a.Username != "" {
		name = "@" + html.EscapeString(a.Username)
	}
	return fmt.Sprintf("✅ Logged in as %s. The account now answers automation commands.", name)
}

// errorMessage turns a failed command into a reply
func errorMessage(err error) string {
	if d, ok := domain.AsRateLimited(err); ok {
		return fmt.Sprintf("⏳ Telegram asks to wait %s before trying again.", d)
	}
	switch {
	case pkgerrors.IsValidation(err), pkgerrors.IsConflict(err), pkgerrors.IsNotFound(err):
		return "⚠️ " + capitalize(err.Error()) + "."
	case pkgerrors.IsPermission(err):
		return "❌ " + capitalize(err.Error()) + "."
	default:
		return "❌ Something went wrong, try again later."
	}
}

func errorType(err error) string {
	if _, ok := domain.AsRateLimited(err); ok {
		return "rate_limited"
	}
	switch {
	case pkgerrors.IsValidation(err):
		return "validation"
	case pkgerrors.IsConflict(err):
		return "conflict"
	case pkgerrors.IsNotFound(err):
		return "not_found"
	case pkgerrors.IsPermission(err):
		return "permission"
	default:
		return "internal"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
