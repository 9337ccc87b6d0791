package domain

// Handle is the registry key derived from a pending operation.
type Handle string

func (h Handle) String() string {
	return string(h)
}
