package api

import (
	"context"
	"encoding/json"
	"net/http"

	"hermannm.dev/eventanalytics/db"
)

// Every analytics endpoint expects:
//   - query parameter 'table': scope of the table to query ('events', 'gkg' or 'mentions')
//   - body: the JSON-encoded request type of the query shape (e.g. db.TimeSeriesRequest)
//
// And returns the JSON-encoded result type (e.g. db.TimeSeriesResult), which includes the
// generated SQL and the query's execution metadata.

func (api AnalysisAPI) TimeSeries(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.TimeSeries)
}

func (api AnalysisAPI) Extremes(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.Extremes)
}

func (api AnalysisAPI) Compare(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.Compare)
}

func (api AnalysisAPI) Trend(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.Trend)
}

func (api AnalysisAPI) Dyad(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.Dyad)
}

func (api AnalysisAPI) TopNPerGroup(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.TopNPerGroup)
}

func (api AnalysisAPI) TopCount(res http.ResponseWriter, req *http.Request) {
	runAnalysis(res, req, api.client.TopCount)
}

func runAnalysis[Request any, Result any](
	res http.ResponseWriter,
	req *http.Request,
	run func(ctx context.Context, scope db.TableScope, request Request) (Result, error),
) {
	table := req.URL.Query().Get("table")
	if table == "" {
		sendClientError(res, nil, "missing 'table' query parameter in request")
		return
	}

	scope, err := db.ParseTableScope(table)
	if err != nil {
		sendClientError(res, err, "")
		return
	}

	var request Request
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		sendClientError(res, err, "failed to parse analysis request from request body")
		return
	}

	result, err := run(req.Context(), scope, request)
	if err != nil {
		sendQueryError(res, err)
		return
	}

	sendJSON(res, result)
}
