package processmanagement

import (
	"fmt"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
)

// BulkEntry is the outcome of one name in a bulk operation
type BulkEntry struct {
	Name string
	Err  error
}

// Fatal reports a real failure; NotRunning and AlreadyRunning mean nothing needed doing
func (e BulkEntry) Fatal() bool {
	if e.Err == nil {
		return false
	}
	return !errors.IsNotRunningError(e.Err) && !errors.IsAlreadyRunningError(e.Err)
}

// BulkResult collects per-name outcomes in processing order
type BulkResult struct {
	Operation string
	Entries   []BulkEntry
}

func (r *BulkResult) add(name string, err error) {
	r.Entries = append(r.Entries, BulkEntry{Name: name, Err: err})
}

// Lookup returns the entry for name
func (r BulkResult) Lookup(name string) (BulkEntry, bool) {
	for _, entry := range r.Entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return BulkEntry{}, false
}

// Errors maps every name that did not succeed to its error
func (r BulkResult) Errors() map[string]error {
	result := make(map[string]error)
	for _, entry := range r.Entries {
		if entry.Err != nil {
			result[entry.Name] = entry.Err
		}
	}
	return result
}

// Failed returns the entries with fatal errors
func (r BulkResult) Failed() []BulkEntry {
	var failed []BulkEntry
	for _, entry := range r.Entries {
		if entry.Fatal() {
			failed = append(failed, entry)
		}
	}
	return failed
}

func (r BulkResult) HasFailures() bool {
	return len(r.Failed()) > 0
}

// Err aggregates fatal failures, nil when there are none
func (r BulkResult) Err() error {
	collection := errors.NewErrorCollection()
	for _, entry := range r.Failed() {
		collection.Add(fmt.Errorf("%s: %w", entry.Name, entry.Err))
	}
	return collection.ToError()
}
