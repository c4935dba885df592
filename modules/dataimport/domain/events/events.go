package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
)

const StageTopic = "data_import.stage.v1"

// StatusChangedV1 is published inside the transaction that changed the status.
type StatusChangedV1 struct {
	FileID     int64
	Transition upload.Transition
	From       upload.Status
	To         upload.Status
	At         time.Time
}

type Step string

const (
	StepCopyToDatabase               Step = "copy_to_database"
	StepSelectUnseenRespondingAgency Step = "select_unseen_responding_agency"
	StepInsertRespondingAgency       Step = "insert_responding_agency"
	StepSelectUnseenParentEmployer   Step = "select_unseen_parent_employer"
	StepInsertParentEmployer         Step = "insert_parent_employer"
	StepSelectUnseenChildEmployer    Step = "select_unseen_child_employer"
	StepInsertChildEmployer          Step = "insert_child_employer"
	StepInsertPosition               Step = "insert_position"
	StepSelectRawPerson              Step = "select_raw_person"
	StepInsertPerson                 Step = "insert_person"
	StepSelectRawJob                 Step = "select_raw_job"
	StepInsertJob                    Step = "insert_job"
	StepInsertSalary                 Step = "insert_salary"
	StepFinalize                     Step = "finalize"
	StepIndex                        Step = "index"
)

var chains = map[upload.Transition][]Step{
	upload.CopyToDatabase: {
		StepCopyToDatabase,
		StepSelectUnseenRespondingAgency,
	},
	upload.SelectUnseenParentEmployer: {
		StepInsertRespondingAgency,
		StepSelectUnseenParentEmployer,
	},
	upload.SelectUnseenChildEmployer: {
		StepInsertParentEmployer,
		StepSelectUnseenChildEmployer,
	},
	upload.SelectInvalidSalary: {
		StepInsertChildEmployer,
		StepInsertPosition,
		StepSelectRawPerson,
		StepInsertPerson,
		StepSelectRawJob,
		StepInsertJob,
		StepInsertSalary,
		StepFinalize,
	},
	upload.Finish: {
		StepIndex,
	},
}

// Chain lists the steps queued after t.
func Chain(t upload.Transition) []Step {
	return append([]Step(nil), chains[t]...)
}

// StageTaskV1 is the payload of one queued step of a chain.
type StageTaskV1 struct {
	FileID  int64     `json:"file_id"`
	ChainID uuid.UUID `json:"chain_id"`
	Steps   []Step    `json:"steps"`
	Step    int       `json:"step"`
}

var chainNamespace = uuid.MustParse("5b0e6a64-0c1d-4f52-8d3b-7e29a1c4f0d8")

// NewStageTask starts the chain of t for a file. The chain id is derived
// from the file and transition, so a replayed transition enqueues nothing new.
func NewStageTask(fileID int64, t upload.Transition) (StageTaskV1, bool) {
	steps := Chain(t)
	if len(steps) == 0 {
		return StageTaskV1{}, false
	}
	return StageTaskV1{
		FileID:  fileID,
		ChainID: uuid.NewSHA1(chainNamespace, []byte(fmt.Sprintf("%d:%s", fileID, t))),
		Steps:   steps,
	}, true
}

func (t StageTaskV1) Current() Step {
	if t.Step < 0 || t.Step >= len(t.Steps) {
		return ""
	}
	return t.Steps[t.Step]
}

func (t StageTaskV1) Next() (StageTaskV1, bool) {
	if t.Step+1 >= len(t.Steps) {
		return StageTaskV1{}, false
	}
	next := t
	next.Steps = append([]Step(nil), t.Steps...)
	next.Step = t.Step + 1
	return next, true
}

// EventID identifies one step of one chain.
func (t StageTaskV1) EventID() uuid.UUID {
	return uuid.NewSHA1(t.ChainID, []byte(fmt.Sprintf("%d:%s", t.Step, t.Current())))
}

func (t StageTaskV1) Key() string {
	return upload.FileKey(t.FileID)
}
