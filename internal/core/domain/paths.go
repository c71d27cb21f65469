package domain

import (
	"fmt"
	"path/filepath"
)

const (
	// DirPerm is the default permission for directories created by sidefx.
	DirPerm = 0o750
	// FilePerm is the default permission for files written by sidefx.
	FilePerm = 0o644

	// DefaultConfigFile is the config file name looked up when none is given.
	DefaultConfigFile = "sidefx.yaml"
	// ReportFileName is the report file written by a single process.
	ReportFileName = "reports.json"
	// MetricsFileName is the Prometheus text dump written after generate.
	MetricsFileName = "metrics.prom"
)

// WorkerReportFileName returns the report file used by the worker with the given id.
func WorkerReportFileName(workerID int) string {
	return fmt.Sprintf("reports_%d.json", workerID)
}

// WorkerLogFileNames returns the stdout and stderr capture files for a worker.
func WorkerLogFileNames(dir string, workerID int) (stdout, stderr string) {
	return filepath.Join(dir, fmt.Sprintf("worker_%d.out", workerID)),
		filepath.Join(dir, fmt.Sprintf("worker_%d.err", workerID))
}

// GraphFileName returns the persisted dependency graph name for a tool configuration.
func GraphFileName(toolIdx int) string {
	return fmt.Sprintf("depgraph_%d.bin", toolIdx)
}

// WorkerMetricsFileName returns the metrics dump written by the worker with the given id.
func WorkerMetricsFileName(workerID int) string {
	return fmt.Sprintf("metrics_%d.prom", workerID)
}
