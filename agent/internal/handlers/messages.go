package handlers

// Error bodies returned to API callers.
const (
	ErrMsgInvalidPayload   = "Invalid request payload"
	ErrMsgInternal         = "Oops! Something went wrong. Please try again."
	ErrMsgUnauthorized     = "Unauthorized"
	ErrMsgMissingOwner     = "Missing owner"
	ErrMsgOwnerMismatch    = "Owner does not match the authenticated caller"
	ErrMsgNotConfigured    = "Monitor trigger is not configured"
	ErrMsgWatchNotFound    = "Watch entry not found"
	ErrMsgWatchExists      = "Wallet is already on the watchlist"
	ErrMsgAlertIDsRequired = "alertIds must be a non-empty array"
	ErrMsgChatIDReadOnly   = "telegramChatId is set by sending /start <code> to the bot; request a code first"
)

