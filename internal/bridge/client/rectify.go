package client

import "strings"

// rectify computes the unique new segment N of an incoming chunk I against
// the already-accumulated string P, per the seven-step algorithm in spec
// §4.5 "Stream rectification (chunk overlap)". It exists because a
// reconnecting or retrying subprocess may resend a chunk that fully or
// partially overlaps what the client already appended.
func rectify(p, i string) string {
	switch {
	case i == "":
		return ""
	case p == "":
		return i
	case i == p:
		return ""
	}

	if len(i) <= len(p) && strings.Contains(p, i) {
		// Duplicate resend of a chunk already folded into P, whether or not
		// it happens to land at the tail.
		return ""
	}

	if strings.HasPrefix(i, p) {
		return i[len(p):]
	}

	if strings.HasSuffix(p, i) {
		return ""
	}

	maxK := len(p)
	if len(i)-1 < maxK {
		maxK = len(i) - 1
	}
	for k := maxK; k > 0; k-- {
		if p[len(p)-k:] == i[:k] {
			return i[k:]
		}
	}
	return i
}
