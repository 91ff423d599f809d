package packages

import (
	"context"
	"strings"

	"github.com/kvesta/vulnmap/pkg/osrelease"
)

var hardwareCommands = []struct {
	attribute string
	cmd       string
}{
	{"model_name", `grep -m1 "model name" /proc/cpuinfo`},
	{"vendor", "cat /sys/class/dmi/id/sys_vendor"},
	{"product_name", "cat /sys/class/dmi/id/product_name"},
	{"bios_version", "cat /sys/class/dmi/id/bios_version"},
}

// placeholders firmware vendors leave in DMI tables
var dmiPlaceholders = []string{"to be filled by o.e.m.", "default string", "not specified", "system product name"}

// GetHardware collects the hardware attributes readable on the target.
// Unreadable attributes are left out.
func GetHardware(ctx context.Context, r osrelease.Runner) map[string]string {
	hw := map[string]string{}

	for _, h := range hardwareCommands {
		out, err := r.Run(ctx, h.cmd)
		if err != nil {
			continue
		}

		if v := ParseHardware(h.attribute, out); v != "" {
			hw[h.attribute] = v
		}
	}

	return hw
}

func ParseHardware(attribute, out string) string {
	v := strings.TrimSpace(out)

	if attribute == "model_name" {
		if _, value, ok := strings.Cut(v, ":"); ok {
			v = strings.TrimSpace(value)
		}
	}

	v = strings.Join(strings.Fields(v), " ")
	for _, p := range dmiPlaceholders {
		if strings.EqualFold(v, p) {
			return ""
		}
	}

	return v
}
