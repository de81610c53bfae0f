package handler

const (
	jsonKeyError   = "error"
	jsonKeyMessage = "message"

	msgContentTypeJSONRequired = "content type must be application/json"
	msgInvalidRequestBody      = "invalid request body"
	msgInvalidCredentials      = "invalid user name or password"
	msgAuthRequired            = "authentication required"
	msgBadRequest              = "invalid input"
	msgUpstreamUnavailable     = "authentication service unavailable"
	msgInternal                = "internal server error"
	msgLoggedOut               = "logged out"
	msgLoginRequired           = "sign in to continue"
	msgStreamingUnsupported    = "streaming unsupported"
	msgShuttingDown            = "shutting down"
)
