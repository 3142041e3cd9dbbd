package investcalc

import (
	"context"
	"fmt"
	"strings"
)

// ExportHistory writes the flows matching filter in the import format, one
// line per flow in canonical order. Numbers are written exactly as stored,
// so importing the output again records the same flows. A flow whose text
// would not survive the round trip fails the export with a validation
// error naming the flow.
func (c *Core) ExportHistory(ctx context.Context, filter HistoryFilter, delimiter string) (string, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	history, err := c.GetHistory(ctx, filter)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range history {
		fields := []string{r.Day.String(), r.Stock, r.Shares.String(), r.Money.String()}
		if r.Comment != nil && strings.TrimSpace(*r.Comment) != "" {
			fields = append(fields, *r.Comment)
		}
		if err := checkExportable(fields, delimiter); err != nil {
			return "", WrapError(ErrCodeValidation, fmt.Sprintf("flow %d cannot be exported", r.ID), err)
		}
		b.WriteString(strings.Join(fields, delimiter))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// checkExportable reports a field that ParseBatch would split or trim.
func checkExportable(fields []string, delimiter string) error {
	for _, f := range fields {
		switch {
		case strings.Contains(f, delimiter):
			return fmt.Errorf("field %q contains the delimiter %q", f, delimiter)
		case strings.ContainsAny(f, "\r\n"):
			return fmt.Errorf("field %q contains a line break", f)
		case strings.TrimSpace(f) != f:
			return fmt.Errorf("field %q has surrounding whitespace", f)
		}
	}
	return nil
}
