package snapshot

import "time"

// Summary holds the exact-named counters spec.md §6 requires ("Summary
// counters (exact names the test suite will inspect)"). Field names
// and JSON tags match that vocabulary directly.
type Summary struct {
	FilesNew        uint64 `json:"files_new"`
	FilesChanged    uint64 `json:"files_changed"`
	FilesUnmodified uint64 `json:"files_unmodified"`

	DirsNew        uint64 `json:"dirs_new"`
	DirsChanged    uint64 `json:"dirs_changed"`
	DirsUnmodified uint64 `json:"dirs_unmodified"`

	DataBlobs uint64 `json:"data_blobs"`
	TreeBlobs uint64 `json:"tree_blobs"`

	DataAdded            uint64 `json:"data_added"`
	DataAddedPacked      uint64 `json:"data_added_packed"`
	DataAddedFiles       uint64 `json:"data_added_files"`
	DataAddedFilesPacked uint64 `json:"data_added_files_packed"`
	DataAddedTrees       uint64 `json:"data_added_trees"`
	DataAddedTreesPacked uint64 `json:"data_added_trees_packed"`

	TotalFilesProcessed   uint64 `json:"total_files_processed"`
	TotalDirsProcessed    uint64 `json:"total_dirs_processed"`
	TotalBytesProcessed   uint64 `json:"total_bytes_processed"`
	TotalDirsizeProcessed uint64 `json:"total_dirsize_processed"`

	BackupStart    time.Time `json:"backup_start"`
	BackupEnd      time.Time `json:"backup_end"`
	BackupDuration float64   `json:"backup_duration"`
	TotalDuration  float64   `json:"total_duration"`

	Command string `json:"command"`
}
