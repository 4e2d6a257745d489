package constants

// DocumentStatus is the lifecycle status stored on documents.status.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentUploaded       DocumentStatus = "UPLOADED"
	DocumentQueued         DocumentStatus = "QUEUED"
	DocumentProcessing     DocumentStatus = "PROCESSING"
	DocumentExtractingText DocumentStatus = "EXTRACTING_TEXT"
	DocumentChunking       DocumentStatus = "CHUNKING"
	DocumentCompleted      DocumentStatus = "COMPLETED"
	DocumentFailed         DocumentStatus = "FAILED"
	DocumentCancelled      DocumentStatus = "CANCELLED"
)

// JobStatus is the canonical status for rows in processing_jobs.
type JobStatus string

const (
	JobWaiting   JobStatus = "WAITING"
	JobActive    JobStatus = "ACTIVE"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobDelayed   JobStatus = "DELAYED" // observability only
	JobStuck     JobStatus = "STUCK"   // ACTIVE past the stuck timeout; never retried
)

// JobKind names the unit of work a job tracks.
type JobKind string

const (
	JobTextExtraction JobKind = "TEXT_EXTRACTION"
	JobTextChunking   JobKind = "TEXT_CHUNKING"
)

// TerminalDocumentStatuses are the states a document never leaves on its own.
var TerminalDocumentStatuses = []DocumentStatus{DocumentCompleted, DocumentFailed, DocumentCancelled}

// NonTerminalDocumentStatuses are the states from which FAILED and CANCELLED are reachable.
var NonTerminalDocumentStatuses = []DocumentStatus{
	DocumentUploaded,
	DocumentQueued,
	DocumentProcessing,
	DocumentExtractingText,
	DocumentChunking,
}

// OpenJobStatuses are the job states a cancel can still move to FAILED.
var OpenJobStatuses = []JobStatus{JobWaiting, JobActive, JobDelayed, JobStuck}

func (s DocumentStatus) IsTerminal() bool {
	for _, t := range TerminalDocumentStatuses {
		if s == t {
			return true
		}
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

var documentForward = map[DocumentStatus]DocumentStatus{
	DocumentUploaded:       DocumentQueued,
	DocumentQueued:         DocumentProcessing,
	DocumentProcessing:     DocumentExtractingText,
	DocumentExtractingText: DocumentChunking,
	DocumentChunking:       DocumentCompleted,
}

// CanTransitionDocument reports whether the pipeline may move a document from one status to another.
// EXTRACTING_TEXT may skip CHUNKING when chunking is disabled.
func CanTransitionDocument(from, to DocumentStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case DocumentFailed, DocumentCancelled:
		return true
	case DocumentCompleted:
		return from == DocumentChunking || from == DocumentExtractingText
	}
	return documentForward[from] == to
}

// CanTransitionJob reports whether a job may move between the two statuses.
func CanTransitionJob(from, to JobStatus) bool {
	switch from {
	case JobWaiting:
		return to == JobActive || to == JobFailed || to == JobDelayed
	case JobDelayed:
		return to == JobActive || to == JobFailed
	case JobActive:
		return to == JobCompleted || to == JobFailed || to == JobStuck
	case JobStuck:
		return to == JobCompleted || to == JobFailed || to == JobActive
	}
	return false
}
