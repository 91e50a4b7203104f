package migration

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteSQL renders statements as a reviewable script. Each history group
// is wrapped in its own transaction; blocked statements are commented out
// with the reason.
func WriteSQL(w io.Writer, statements []Statement, generatedAt time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "-- Legacy leave import\n-- Generated %s\n", generatedAt.UTC().Format(time.RFC3339))

	blocked := 0
	for _, s := range statements {
		if s.Blocked {
			blocked++
		}
	}
	fmt.Fprintf(bw, "-- %d statement(s), %d blocked pending identity review\n", len(statements), blocked)

	openGroup := ""
	closeGroup := func() {
		if openGroup != "" {
			bw.WriteString("COMMIT;\n")
			openGroup = ""
		}
	}
	for _, s := range statements {
		if s.Group != openGroup {
			closeGroup()
		}
		if s.Part == PartHeader {
			fmt.Fprintf(bw, "\n-- %s: leave history\n", s.LegacyName)
			if !s.Blocked {
				bw.WriteString("BEGIN;\n")
				openGroup = s.Group
			}
		} else if s.Part == PartProfile {
			fmt.Fprintf(bw, "\n-- %s: entitlement and working pattern\n", s.LegacyName)
		}
		if s.Blocked {
			if s.Part != PartDetail {
				fmt.Fprintf(bw, "-- BLOCKED: %s\n", s.Reason)
			}
			bw.WriteString("-- " + strings.ReplaceAll(s.SQL(), "\n", "\n-- ") + "\n")
			continue
		}
		bw.WriteString(s.SQL() + "\n")
	}
	closeGroup()
	return bw.Flush()
}
