package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
// Display-name forms keep the name: "John <john@example.com>" → "John <jo***@example.com>"
func RedactEmail(email string) string {
	email = strings.TrimSpace(email)
	if open := strings.LastIndex(email, "<"); open >= 0 && strings.HasSuffix(email, ">") {
		return email[:open+1] + RedactEmail(email[open+1:len(email)-1]) + ">"
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	name, domain := email[:at], email[at+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}
