// Package notify delivers one-time codes by email.
//
// Mailer implements authcore.Notifier: it renders the embedded HTML
// templates and hands the result to a Sender. Three senders are provided:
//
//   - PostmarkSender sends through the Postmark transactional API
//   - DevSender writes each message to a directory as .html and .json files
//   - LogSender writes a structured log line and nothing else
//
// Codes never appear in log output; DevSender is the only sender that
// persists them, and it is meant for local development.
package notify
