package domain

import "go.trai.ch/zerr"

var (
	// ErrNodeNotFound is returned when a node locator cannot be resolved in the current object graph.
	ErrNodeNotFound = zerr.New("node not found")

	// ErrValueEncoding is returned when an evaluation result cannot be encoded into a comparable value.
	ErrValueEncoding = zerr.New("failed to encode property value")

	// ErrNoComputeRoutine is returned when a property has no equation that can be invoked directly.
	ErrNoComputeRoutine = zerr.New("property has no compute routine")

	// ErrSessionClosed is returned when an evaluator session is used after Close.
	ErrSessionClosed = zerr.New("evaluator session is closed")

	// ErrToolProtocol is returned when the tool process violates the line protocol.
	ErrToolProtocol = zerr.New("tool protocol violation")

	// ErrToolStartFailed is returned when the tool process cannot be started.
	ErrToolStartFailed = zerr.New("failed to start tool process")

	// ErrSourceSyntax is returned when the sandbox cannot parse its input program.
	ErrSourceSyntax = zerr.New("invalid sandbox source")

	// ErrCanonicalEncoding signals an internal invariant violation while producing canonical bytes.
	ErrCanonicalEncoding = zerr.New("canonical encoding failed")

	// ErrGraphDecode is returned when a persisted dependency graph is malformed.
	ErrGraphDecode = zerr.New("failed to decode dependency graph")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigInvalid is returned when the config file fails validation.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrUnknownAlgorithm is returned when the configured search algorithm is not recognized.
	ErrUnknownAlgorithm = zerr.New("unknown search algorithm")

	// ErrNoEntryPoints is returned when no discovery entry points are configured.
	ErrNoEntryPoints = zerr.New("no entry points configured")

	// ErrReportReadFailed is returned when a report file cannot be read.
	ErrReportReadFailed = zerr.New("failed to read report file")

	// ErrReportParseFailed is returned when a report file cannot be parsed.
	ErrReportParseFailed = zerr.New("failed to parse report file")

	// ErrReportWriteFailed is returned when a report file cannot be written.
	ErrReportWriteFailed = zerr.New("failed to write report file")

	// ErrWorkerFailed is returned when a worker process exits unsuccessfully.
	ErrWorkerFailed = zerr.New("worker process failed")

	// ErrInvalidWorkerSlice is returned when worker identifiers are out of range.
	ErrInvalidWorkerSlice = zerr.New("invalid worker assignment")

	// ErrReferencePassFailed is returned when the reference evaluation pass cannot complete.
	ErrReferencePassFailed = zerr.New("reference pass failed")
)
