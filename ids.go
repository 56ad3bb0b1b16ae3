package gridjob

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDs parses the CLI's id-selection syntax: individual numbers,
// inclusive ranges "a-b", and unions of either separated by "+", e.g.
// "1-3+7" yields [1 2 3 7]. Ids are returned in the order encountered,
// without deduplication, matching the order a user would expect
// --job-ids to be reported back in.
func ParseIDs(spec string) ([]int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(spec, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("gridjob: empty id segment in %q", spec)
		}
		if idx := strings.Index(part, "-"); idx > 0 {
			first, err := strconv.ParseInt(part[:idx], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("gridjob: bad range start %q: %w", part, err)
			}
			last, err := strconv.ParseInt(part[idx+1:], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("gridjob: bad range end %q: %w", part, err)
			}
			if last < first {
				return nil, fmt.Errorf("gridjob: range %q has end before start", part)
			}
			for id := first; id <= last; id++ {
				out = append(out, id)
			}
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("gridjob: bad id %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
