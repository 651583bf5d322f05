package storage

import "os"

// DiskUsageBytes sums the on-disk size of the given data files. For any
// path ending in .db the WAL siblings are included, since in WAL mode a
// large share of recent writes can live there. Missing files contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	seen := map[string]bool{}
	expand := func(p string) []string {
		if len(p) > 3 && p[len(p)-3:] == ".db" {
			return append([]string{p}, auxPaths(p)...)
		}
		return []string{p}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		for _, q := range expand(p) {
			if seen[q] {
				continue
			}
			seen[q] = true
			info, err := os.Stat(q)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return 0, err
			}
			if !info.IsDir() {
				total += info.Size()
			}
		}
	}
	return total, nil
}
