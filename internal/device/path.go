package device

import "strings"

// MaxPathDepth is the deepest attribute path: service/characteristic/descriptor.
const MaxPathDepth = 3

// Path identifies an attribute by the UUIDs of its ancestors and itself.
// Paths are comparable and are used as request queue keys.
type Path struct {
	uuids [MaxPathDepth]string
	depth uint8
}

// NewPath builds a path from 1 to 3 UUIDs, outermost first. UUIDs are normalized.
// It panics on an empty or too deep path.
func NewPath(uuids ...string) Path {
	if len(uuids) == 0 || len(uuids) > MaxPathDepth {
		panic("device: path must have between 1 and 3 UUIDs")
	}
	var p Path
	for i, u := range uuids {
		p.uuids[i] = NormalizeUUID(u)
	}
	p.depth = uint8(len(uuids))
	return p
}

// ServicePath is the path of a service.
func ServicePath(svc Service) Path {
	return NewPath(svc.UUID())
}

// CharacteristicPath is the path of a characteristic: service/characteristic.
func CharacteristicPath(chr Characteristic) Path {
	return NewPath(chr.Service().UUID(), chr.UUID())
}

// DescriptorPath is the path of a descriptor: service/characteristic/descriptor.
func DescriptorPath(dsc Descriptor) Path {
	chr := dsc.Characteristic()
	return NewPath(chr.Service().UUID(), chr.UUID(), dsc.UUID())
}

// Len returns the number of UUIDs in the path.
func (p Path) Len() int {
	return int(p.depth)
}

// UUIDs returns the path elements, outermost first.
func (p Path) UUIDs() []string {
	return append([]string(nil), p.uuids[:p.depth]...)
}

// Last returns the innermost UUID.
func (p Path) Last() string {
	if p.depth == 0 {
		return ""
	}
	return p.uuids[p.depth-1]
}

func (p Path) String() string {
	return strings.Join(p.uuids[:p.depth], "/")
}
