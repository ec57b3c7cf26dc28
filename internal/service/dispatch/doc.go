// Package dispatch delivers rendered messages to recipients.
//
// Each delivery channel is a strategy behind the one-method Channel
// interface, registered by name on a Dispatcher. Channels wrap a Provider,
// the external collaborator that actually talks to SES, WhatsApp or an SMS
// gateway. Nothing in this package returns an error for a single
// recipient: missing contact data, provider errors and provider panics all
// become failed Results so one bad recipient never aborts a batch.
package dispatch
