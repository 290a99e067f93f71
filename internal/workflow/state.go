// Package workflow coordinates the planner, the tool executor and the
// session store into one conversational search run.
package workflow

import (
	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
)

// Input starts one run.
type Input struct {
	UserRequest string
	UserID      string
}

// Result is the sole externally observable output of a run.
type Result struct {
	SheetURL   string
	Summary    string
	NumResults int
	SessionID  string
}

// RunState is the mutable state of one orchestration run. It is owned
// exclusively by that run and discarded when the run ends; terminal
// values are copied into the Result.
type RunState struct {
	Criteria   criteria.SearchCriteria
	UserID     string
	Rows       []listings.Listing // last successful fetch, nil otherwise
	SheetURL   string
	NumResults int
	LastError  string
}
