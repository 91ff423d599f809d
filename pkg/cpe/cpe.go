package cpe

import (
	"fmt"
	"strings"
)

const (
	prefix     = "cpe:2.3:"
	fieldCount = 13
)

// WFN holds the attributes of a formatted CPE 2.3 string.
type WFN struct {
	Part      string
	Vendor    string
	Product   string
	Version   string
	Update    string
	Edition   string
	Language  string
	SWEdition string
	TargetSW  string
	TargetHW  string
	Other     string
}

// split divides a formatted string on unescaped colons
func split(s string) []string {
	var fields []string
	var cur strings.Builder

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if c == ':' {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	fields = append(fields, cur.String())

	return fields
}

// Parse checks the 13-field colon-delimited layout and returns its attributes.
func Parse(s string) (*WFN, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, prefix) {
		return nil, fmt.Errorf("missing %q prefix", prefix)
	}

	fields := split(s)
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", fieldCount, len(fields))
	}

	for i, f := range fields[2:] {
		if f == "" {
			return nil, fmt.Errorf("field %d is empty", i+3)
		}
		if strings.ContainsAny(f, " \t") {
			return nil, fmt.Errorf("field %d contains whitespace", i+3)
		}
	}

	w := &WFN{
		Part:      fields[2],
		Vendor:    fields[3],
		Product:   fields[4],
		Version:   fields[5],
		Update:    fields[6],
		Edition:   fields[7],
		Language:  fields[8],
		SWEdition: fields[9],
		TargetSW:  fields[10],
		TargetHW:  fields[11],
		Other:     fields[12],
	}

	switch w.Part {
	case "a", "o", "h":
	default:
		return nil, fmt.Errorf("invalid part %q", w.Part)
	}

	if isAny(w.Vendor) || isAny(w.Product) {
		return nil, fmt.Errorf("vendor and product must be set")
	}

	return w, nil
}

func isAny(v string) bool {
	return v == "*" || v == "-"
}

// String formats w back into a CPE 2.3 formatted string.
func (w *WFN) String() string {
	return strings.Join([]string{"cpe", "2.3", w.Part, w.Vendor, w.Product, w.Version,
		w.Update, w.Edition, w.Language, w.SWEdition, w.TargetSW, w.TargetHW, w.Other}, ":")
}
