package domain

// Stage is a state of the backup state machine:
//
//	Idle → ConnectionValidated → FilestoreResolved → DumpInProgress →
//	FilestoreCompressing → ArchiveFinalized → Done
//
// Failed is reachable from every non-terminal stage.
type Stage int

const (
	StageIdle Stage = iota
	StageConnectionValidated
	StageFilestoreResolved
	StageDumpInProgress
	StageFilestoreCompressing
	StageArchiveFinalized
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:                 "idle",
	StageConnectionValidated:  "connection_validated",
	StageFilestoreResolved:    "filestore_resolved",
	StageDumpInProgress:       "dump_in_progress",
	StageFilestoreCompressing: "filestore_compressing",
	StageArchiveFinalized:     "archive_finalized",
	StageDone:                 "done",
	StageFailed:               "error",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Observer receives status and progress callbacks during a run.
type Observer interface {
	StageChanged(stage Stage)
	FileAdded(relPath string, size int64)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) StageChanged(Stage)      {}
func (NopObserver) FileAdded(string, int64) {}
