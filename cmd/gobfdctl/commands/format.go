// Package commands implements the bfdctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dantte-lp/bfdd/internal/adminapi"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of BFD sessions in the requested format.
func formatSessions(sessions []adminapi.SessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionsJSON(sessions)
	case formatTable:
		return formatSessionsTable(sessions)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatter ---

func formatSessionsTable(sessions []adminapi.SessionView) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tNEIGHBOR\tLOCAL-STATE\tREMOTE-STATE\tDIAG\tLOCAL-DISCR\tREMOTE-DISCR\tTX-MS\tDETECT-MS\tREMOTE-DETECT-MS")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			s.Name,
			s.NeighborAddr,
			s.LocalState,
			s.RemoteState,
			s.LocalDiag,
			s.LocalDiscriminator,
			s.RemoteDiscriminator,
			s.LocalTxIntervalMS,
			s.DetectTimeMS,
			s.RemoteDetectTimeMS,
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// --- JSON formatter ---

func formatSessionsJSON(sessions []adminapi.SessionView) (string, error) {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions to JSON: %w", err)
	}

	return string(data), nil
}
