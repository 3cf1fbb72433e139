package dispatcher

import "fmt"

// StaticKeySource is a KeySource built once at startup from configuration:
// a fixed, ordered credential list per backend that never changes for the
// lifetime of the process (credential rotation happens by editing the
// config file and restarting, not by mutating this value).
type StaticKeySource struct {
	byBackend map[string][]Credential
}

// NewStaticKeySource builds a StaticKeySource from a backend->values map,
// naming each credential "<backend>-<n>" in configuration order.
func NewStaticKeySource(values map[string][]string) *StaticKeySource {
	byBackend := make(map[string][]Credential, len(values))
	for backend, vals := range values {
		creds := make([]Credential, 0, len(vals))
		for i, v := range vals {
			creds = append(creds, Credential{Name: fmt.Sprintf("%s-%d", backend, i+1), Value: v})
		}
		byBackend[backend] = creds
	}
	return &StaticKeySource{byBackend: byBackend}
}

// Keys implements KeySource.
func (s *StaticKeySource) Keys(backend string) []Credential {
	return s.byBackend[backend]
}
