// Package metadata holds the headers the fabric attaches to every
// transport message next to the envelope payload.
package metadata

import "strconv"

// Header keys set on every published envelope.
const (
	KeyJob    = "mpiflow_job"
	KeyKind   = "mpiflow_kind"
	KeySource = "mpiflow_src"
	KeyDest   = "mpiflow_dst"
)

// Metadata represents the headers carried alongside an envelope.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// Rank parses the rank stored under key.
func (m Metadata) Rank(key string) (int32, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

// ForEnvelope builds the headers for an envelope of kind travelling from
// src to dst within job.
func ForEnvelope(job, kind string, src, dst int32) Metadata {
	return New(
		KeyJob, job,
		KeyKind, kind,
		KeySource, strconv.FormatInt(int64(src), 10),
		KeyDest, strconv.FormatInt(int64(dst), 10),
	)
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
