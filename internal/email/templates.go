package email

import (
	"fmt"
	"html"
	"time"
)

const layout = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="margin:0;padding:40px 0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="480" align="center" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;">
  <tr><td style="padding:32px 40px 16px;"><h1 style="margin:0;font-size:22px;color:#1a3d2e;">%s</h1></td></tr>
  <tr><td style="padding:0 40px 32px;font-size:15px;color:#4a4a68;line-height:1.6;">%s</td></tr>
  <tr><td style="padding:16px 40px;background-color:#f9f9fc;border-top:1px solid #eeeef2;font-size:12px;color:#aaaabc;text-align:center;">
    &copy; %s. This is an automated message, please do not reply.
  </td></tr>
</table>
</body>
</html>`

// CredentialsChangedMessage tells the account owner that their sign-in
// details changed and every session was signed out.
func CredentialsChangedMessage(to, username, appName string, emailChanged bool, at time.Time) Message {
	what := "password"
	if emailChanged {
		what = "sign-in email"
	}
	when := at.UTC().Format(time.RFC1123)

	body := fmt.Sprintf(`<p>Hi %s,</p><p>The %s on your %s account was changed on %s. All devices have been signed out.</p>
<p>If this was not you, contact an administrator right away.</p>`,
		html.EscapeString(username), what, html.EscapeString(appName), when)

	text := fmt.Sprintf(`Hi %s,

The %s on your %s account was changed on %s. All devices have been signed out.

If this was not you, contact an administrator right away.

- %s`, username, what, appName, when, appName)

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Your %s %s was changed", appName, what),
		HTMLBody: fmt.Sprintf(layout, "Account update", "Your account was updated", body, html.EscapeString(appName)),
		TextBody: text,
	}
}

// WelcomeMessage greets a newly registered account.
func WelcomeMessage(to, username, appName string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Your %s account is ready. You can now report overflowing bins and track your reports.</p>`,
		html.EscapeString(username), html.EscapeString(appName))

	text := fmt.Sprintf(`Hi %s,

Your %s account is ready. You can now report overflowing bins and track your reports.

- %s`, username, appName, appName)

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Welcome to %s", appName),
		HTMLBody: fmt.Sprintf(layout, "Welcome", "Welcome to "+html.EscapeString(appName), body, html.EscapeString(appName)),
		TextBody: text,
	}
}
