// Package errors provides structured error handling for engine operations.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Changeset errors
	CodeChangesetEmptyScopeKey    Code = "CHANGESET_EMPTY_SCOPE_KEY"
	CodeChangesetEmptyClientID    Code = "CHANGESET_EMPTY_CLIENT_ID"
	CodeChangesetNoFiles          Code = "CHANGESET_NO_FILES"
	CodeChangesetEmptyFileID      Code = "CHANGESET_EMPTY_FILE_ID"
	CodeChangesetDuplicateFileID  Code = "CHANGESET_DUPLICATE_FILE_ID"
	CodeChangesetInvalidOpType    Code = "CHANGESET_INVALID_OP_TYPE"
	CodeChangesetInvalidStatus    Code = "CHANGESET_INVALID_STATUS"
	CodeChangesetStatusTransition Code = "CHANGESET_INVALID_STATUS_TRANSITION"
	CodeChangesetLostRace         Code = "CHANGESET_LOST_RACE"

	// Review errors
	CodeReviewInvalidDecision Code = "REVIEW_INVALID_DECISION"
	CodeReviewEmptyReviewer   Code = "REVIEW_EMPTY_REVIEWER"
	CodeReviewMissingAmended  Code = "REVIEW_MISSING_AMENDED_CONTENT"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeChangesetEmptyScopeKey,
		CodeChangesetEmptyClientID,
		CodeChangesetNoFiles,
		CodeChangesetEmptyFileID,
		CodeChangesetDuplicateFileID,
		CodeChangesetInvalidOpType,
		CodeChangesetInvalidStatus,
		CodeReviewInvalidDecision,
		CodeReviewEmptyReviewer,
		CodeReviewMissingAmended:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeChangesetStatusTransition:
		return codes.FailedPrecondition

	// Aborted - concurrent transition won the race
	case CodeChangesetLostRace:
		return codes.Aborted

	case CodeNotFound:
		return codes.NotFound

	case CodeAlreadyExists:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
