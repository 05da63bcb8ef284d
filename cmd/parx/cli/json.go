// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// JSONOutput is an embeddable struct that adds --json output support
// to a command's parameter struct. Embedding it provides the --json
// flag (via struct tag processing in [BindFlags]) and the [EmitJSON]
// method for conditional JSON output.
//
// Usage:
//
//	type verifyParams struct {
//	    cli.JSONOutput
//	    Threads int `flag:"threads" desc:"worker pool size"`
//	}
//
//	// In Run:
//	if done, err := params.EmitJSON(report); done {
//	    return err
//	}
//	// ... text formatting ...
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result as indented JSON to stdout if --json is
// set. Returns (true, nil) on success, (true, err) on write failure,
// or (false, nil) when --json is not set and the caller should
// proceed with text formatting.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(result)
}

// Enabled reports whether --json was requested.
func (j *JSONOutput) Enabled() bool { return j.OutputJSON }

// WriteJSON marshals value as indented JSON to stdout.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// EmitError prints err for automation: the structured
// {code, kind, message, path?, op?} shape on stdout when jsonMode is
// set, nothing otherwise (main prints the human-readable line).
func EmitError(err error, jsonMode bool) {
	if !jsonMode || err == nil {
		return
	}
	_ = WriteJSON(parxerr.Shape(err))
}
