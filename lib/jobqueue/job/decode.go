package job

import (
	"bytes"
	"encoding/json"
)

// flexibleStringList decodes a JSON array of strings, but also tolerates a
// bare JSON object ({}) in its place and treats it as empty. The
// server-side script's JSON encoder renders an empty Lua table as `{}`
// rather than `[]`, since Lua has no way to distinguish an empty array
// from an empty map — every list-typed field in a job record needs this.
type flexibleStringList []string

func (f *flexibleStringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		*f = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

// flexibleHistory is flexibleStringList's counterpart for the history
// field, which holds structured records rather than bare strings.
type flexibleHistory []HistoryEntry

func (f *flexibleHistory) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		*f = nil
		return nil
	}
	var list []HistoryEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

// jobRecord mirrors the JSON document the server returns for a job (from
// pop/peek/get), field-for-field against reqless/job.py's BaseJob/Job
// constructor kwargs.
type jobRecord struct {
	Jid          string              `json:"jid"`
	Klass        string              `json:"klass"`
	Queue        string              `json:"queue"`
	Data         string              `json:"data"`
	Priority     int                 `json:"priority"`
	Tags         flexibleStringList  `json:"tags"`
	Throttles    flexibleStringList  `json:"throttles"`
	State        string              `json:"state"`
	Failure      *Failure            `json:"failure"`
	Dependents   flexibleStringList  `json:"dependents"`
	Dependencies flexibleStringList  `json:"dependencies"`
	Tracked      bool                `json:"tracked"`
	Worker       string              `json:"worker"`
	Remaining    int                 `json:"remaining"`
	Expires      float64             `json:"expires"`
	Retries      int                 `json:"retries"`
	History      flexibleHistory     `json:"history"`
	Sandbox      string              `json:"sandbox"`
	SpawnedFrom  string              `json:"spawned_from_jid,omitempty"`
}

// recurringRecord adds the RecurringJob-only fields atop jobRecord's
// common attribute subset.
type recurringRecord struct {
	jobRecord
	Interval int     `json:"interval"`
	Count    int     `json:"count"`
	Next     float64 `json:"next"`
}

func decodeJob(raw string) (*jobRecord, error) {
	var rec jobRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeJobs(raw string) ([]*jobRecord, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	var recs []*jobRecord
	if err := json.Unmarshal(trimmed, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func decodeRecurring(raw string) (*recurringRecord, error) {
	var rec recurringRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
