// Package audit records every lifecycle transition attempt in an
// append-only log. Events are written for successful transitions as well
// as denied and failed attempts, so the log answers both "what happened"
// and "what was tried".
package audit
