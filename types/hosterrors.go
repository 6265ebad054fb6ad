package types

// Host function result codes returned to guests. Part of the ABI.
const (
	HostErrorSuccess uint32 = iota
	HostErrorNotFound
	HostErrorInvalidData
	HostErrorInvalidInput
	HostErrorTopicTooLong
	HostErrorTooManyTopics
	HostErrorPayloadTooLong
	HostErrorMessageTopicFull
	HostErrorMaxMessagesPerBlockExceeded
	HostErrorInternal
)

// Limits enforced by the message emission host function.
const (
	MaxTopicNameSize    = 256
	MaxMessagePayload   = 1024
	MaxTopicsPerEntity  = 128
	MaxMessagesPerBlock = 64
)
