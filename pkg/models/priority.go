package models

// Priority orders requests. 1 is the highest, 5 the lowest.
type Priority int

const (
	PriorityHighest Priority = 1
	PriorityHigh    Priority = 2
	PriorityNormal  Priority = 3
	PriorityLow     Priority = 4
	PriorityLowest  Priority = 5
)

// Valid returns true if the priority is within 1..5.
func (p Priority) Valid() bool {
	return p >= PriorityHighest && p <= PriorityLowest
}

// OrDefault returns p, or PriorityNormal when p is out of range.
func (p Priority) OrDefault() Priority {
	if !p.Valid() {
		return PriorityNormal
	}
	return p
}
