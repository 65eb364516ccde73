package api

import (
	"net/http"

	"hermannm.dev/devlog/log"
)

// Returns:
//   - JSON-encoded cost.Usage
func (api AnalysisAPI) GetBudget(res http.ResponseWriter, req *http.Request) {
	sendJSON(res, api.client.Tracker().Usage())
}

// Zeroes the bytes and queries counted against the budget, keeping the budget itself.
//
// Returns:
//   - JSON-encoded cost.Usage after the reset
func (api AnalysisAPI) ResetBudget(res http.ResponseWriter, req *http.Request) {
	tracker := api.client.Tracker()
	tracker.Reset()
	log.Info("query budget reset")

	sendJSON(res, tracker.Usage())
}
