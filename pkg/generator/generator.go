package generator

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kvesta/vulnmap/pkg/cpe"
)

var listMarker = regexp.MustCompile(`^(\d+[.)]|[-*])\s+`)

type Kind string

const (
	Software Kind = "software"
	Hardware Kind = "hardware"
)

// Generator turns item labels into candidate CPE 2.3 identifiers.
type Generator interface {
	Generate(ctx context.Context, names []string, kind Kind) (map[string][]string, error)
}

// Result splits generated candidates into well-formed and rejected ones.
type Result struct {
	Valid    map[string][]string
	Rejected map[string][]string
}

// Classify separates malformed identifiers so they can be marked invalid
// before they ever reach the vulnerability source.
func Classify(generated map[string][]string) Result {
	res := Result{
		Valid:    map[string][]string{},
		Rejected: map[string][]string{},
	}

	for name, ids := range generated {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			w, err := cpe.Parse(id)
			if err != nil {
				res.Rejected[name] = append(res.Rejected[name], id)
				continue
			}
			res.Valid[name] = append(res.Valid[name], w.String())
		}
	}

	return res
}

// ParseResponse maps response lines back to names. Lines are expected as
// "name|cpe[|cpe...]"; lines without a known name are aligned by position.
func ParseResponse(text string, names []string) map[string][]string {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	out := map[string][]string{}
	var positional []string

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = listMarker.ReplaceAllString(line, "")
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) > 1 {
			name := strings.TrimSpace(parts[0])
			if known[name] {
				for _, p := range parts[1:] {
					if p = strings.TrimSpace(p); p != "" && !contains(out[name], p) {
						out[name] = append(out[name], p)
					}
				}
				continue
			}
			line = strings.TrimSpace(parts[len(parts)-1])
		}

		if strings.HasPrefix(line, "cpe:") {
			positional = append(positional, line)
		}
	}

	// Positional fallback for models that drop the name column
	if len(out) == 0 && len(positional) == len(names) {
		for i, n := range names {
			out[n] = []string{positional[i]}
		}
	}

	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func buildPrompt(names []string, kind Kind) string {
	var sb strings.Builder

	switch kind {
	case Hardware:
		sb.WriteString("Generate CPE 2.3 identifiers for the following hardware components. ")
		sb.WriteString("Use part 'h' for devices and 'o' for firmware such as BIOS versions.\n")
	default:
		sb.WriteString("Generate CPE 2.3 identifiers for the following installed Linux packages. ")
		sb.WriteString("Map distribution package names to the upstream vendor and product used by the NVD.\n")
	}

	sb.WriteString("Answer with exactly one line per input, formatted as `input|cpe`, ")
	sb.WriteString("where cpe has all 13 colon separated fields, e.g. ")
	sb.WriteString("cpe:2.3:a:haxx:curl:7.68.0:*:*:*:*:*:*:*. Several identifiers for one input ")
	sb.WriteString("may be separated by further `|`. Do not add explanations.\n\n")

	for _, n := range names {
		sb.WriteString(fmt.Sprintf("%s\n", n))
	}

	return sb.String()
}
