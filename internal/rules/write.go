package rules

import (
	"bufio"
	"io"
)

// Write emits a complete rule file: the header followed by one canonical
// line per rule, in the given order.
func Write(w io.Writer, rs []Rule) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(FormatTag + " " + Version + " " + Namespace + "\n"); err != nil {
		return err
	}
	if len(rs) == 0 {
		// A bare header line is not a valid rule file.
		if _, err := bw.WriteString("\n"); err != nil {
			return err
		}
	}
	for _, r := range rs {
		if _, err := bw.WriteString(r.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
