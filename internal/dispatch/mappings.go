package dispatch

import "archivefs/internal/archive"

// firstVirtualFD is where virtual descriptors start. Low descriptors are
// left untouched so virtual fds never collide with stdio or early process
// descriptors the host runtime may compare against.
const firstVirtualFD = 10

// realSource is what a virtual descriptor resolves to: the real descriptor
// and the mount that owns it, nil for pass-through files.
type realSource struct {
	real  int
	mount *archive.Archive
}

// mappings is the virtual descriptor table. Virtual fds are minted
// monotonically; freed values are not reused before the counter wraps.
type mappings struct {
	counter int
	known   map[int]realSource
}

func newMappings() *mappings {
	return &mappings{
		counter: firstVirtualFD,
		known:   make(map[int]realSource),
	}
}

func (m *mappings) nextVirtual() int {
	r := m.counter
	m.counter++
	if m.counter < firstVirtualFD {
		m.counter = firstVirtualFD
	}
	return r
}

// insert mints a virtual fd for a real descriptor.
func (m *mappings) insert(real int, mount *archive.Archive) int {
	v := m.nextVirtual()
	m.known[v] = realSource{real: real, mount: mount}
	return v
}

func (m *mappings) get(virtual int) (realSource, bool) {
	src, ok := m.known[virtual]
	return src, ok
}

func (m *mappings) remove(virtual int) {
	delete(m.known, virtual)
}

func (m *mappings) size() int {
	return len(m.known)
}
