package engine

import "github.com/hrygo/pebbletrail/store"

// ReplyKind classifies a reply for the transport layer.
type ReplyKind int

const (
	ReplyKindPrompt ReplyKind = iota
	ReplyKindConfirmation
	ReplyKindError
	ReplyKindList
)

// ReplyCode identifies the semantic content of a reply. The transport maps
// codes to localized user-facing text; the engine never formats strings.
type ReplyCode string

const (
	// Prompts
	CodeAskName        ReplyCode = "ask_name"
	CodeAskDescription ReplyCode = "ask_description"
	CodeAskLocation    ReplyCode = "ask_location"
	CodeExpectedPhoto  ReplyCode = "expected_photo"

	// Confirmations
	CodeStoneMatched    ReplyCode = "stone_matched"
	CodeStoneRegistered ReplyCode = "stone_registered"
	CodeSightingSaved   ReplyCode = "sighting_saved"
	CodeCancelled       ReplyCode = "cancelled"
	CodeNothingToCancel ReplyCode = "nothing_to_cancel"

	// Errors
	CodeNotAStone    ReplyCode = "not_a_stone"
	CodeNameTooShort ReplyCode = "name_too_short"
	CodeStepFailed   ReplyCode = "step_failed"

	// Lists
	CodeSearchResults  ReplyCode = "search_results"
	CodeSearchEmpty    ReplyCode = "search_empty"
	CodeStoneList      ReplyCode = "stone_list"
	CodeStoneListEmpty ReplyCode = "stone_list_empty"
)

// StoneSummary is the display payload for one stone in a reply.
type StoneSummary struct {
	Stone         *store.Stone
	SightingCount int
	Similarity    float32
}

// Reply is the structured result of handling one inbound event. The chat
// transport renders it in its own medium.
type Reply struct {
	Kind ReplyKind
	Code ReplyCode

	// Stone is the subject of the reply, when any.
	Stone *StoneSummary
	// Stones carries list results (text search, owned stones).
	Stones []*StoneSummary
	// Name echoes the pending name while registering.
	Name string
	// Address is the reverse-geocoded location for display, when known.
	Address *Address
	// Thumbnail is a preview of the cropped subject, when available.
	Thumbnail []byte
	// MapImage is the rendered route map, when available.
	MapImage []byte
	// Retryable marks error replies where repeating the same input is safe.
	Retryable bool
}

func promptReply(code ReplyCode) *Reply {
	return &Reply{Kind: ReplyKindPrompt, Code: code}
}

func errorReply(code ReplyCode, retryable bool) *Reply {
	return &Reply{Kind: ReplyKindError, Code: code, Retryable: retryable}
}
