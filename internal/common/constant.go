package common

// RequestIDHeaderName is the gRPC metadata key carrying a request id.
const RequestIDHeaderName = "x-request-id"
