package docker

import "strings"

// parseVolumeSpecs converts bind strings like "C:/data:/data:ro" or
// "/host/logs:/container/logs" into the runtime's Binds format with the mode
// normalized to exactly "ro" or "rw". Specs are split from the right so
// Windows drive letters in the host path survive. A spec without a container
// path is skipped; the remaining specs are still processed. An unknown mode
// token falls back to read-write.
func parseVolumeSpecs(specs []string) []string {
	var binds []string
	for _, spec := range specs {
		parts := rsplitColon(spec, 3)
		if len(parts) < 2 {
			continue
		}
		host, cont := parts[0], parts[1]
		mode := "rw"
		if len(parts) == 3 {
			mode = strings.ToLower(parts[2])
			if mode != "ro" && mode != "rw" {
				mode = "rw"
			}
		}
		binds = append(binds, host+":"+cont+":"+mode)
	}
	return binds
}

// rsplitColon splits s on ":" from the right into at most max segments.
func rsplitColon(s string, max int) []string {
	parts := []string{s}
	for len(parts) < max {
		i := strings.LastIndex(parts[0], ":")
		if i < 0 {
			break
		}
		parts = append([]string{parts[0][:i], parts[0][i+1:]}, parts[1:]...)
	}
	return parts
}
