package fast

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rvemu/rvemu/rvgo/riscv"
)

// Note: 2**12 = 4 KiB, the page size the guest sees in AT_PAGESZ.
const (
	PageAddrSize = 12
	PageKeySize  = 64 - PageAddrSize
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
)

// Memory is a sparse guest address space. Pages are allocated on first write;
// reads of pages that were never written return zeroes.
type Memory struct {
	pages map[uint64]*Page

	// two caches: we often read instructions from one page, and do memory things with another page.
	// this prevents map lookups each instruction
	lastPageKeys [2]uint64
	lastPage     [2]*Page
}

func NewMemory() *Memory {
	return &Memory{
		pages:        make(map[uint64]*Page),
		lastPageKeys: [2]uint64{^uint64(0), ^uint64(0)}, // default to invalid keys, to not match any pages
	}
}

func (m *Memory) PageCount() int {
	return len(m.pages)
}

func (m *Memory) pageLookup(pageIndex uint64) (*Page, bool) {
	// hit caches
	if pageIndex == m.lastPageKeys[0] {
		return m.lastPage[0], true
	}
	if pageIndex == m.lastPageKeys[1] {
		return m.lastPage[1], true
	}
	p, ok := m.pages[pageIndex]

	// only cache existing pages.
	if ok {
		m.lastPageKeys[1] = m.lastPageKeys[0]
		m.lastPage[1] = m.lastPage[0]
		m.lastPageKeys[0] = pageIndex
		m.lastPage[0] = p
	}

	return p, ok
}

func (m *Memory) AllocPage(pageIndex uint64) *Page {
	p := new(Page)
	m.pages[pageIndex] = p
	return p
}

func (m *Memory) pageFor(addr uint64) *Page {
	pageIndex := addr >> PageAddrSize
	p, ok := m.pageLookup(pageIndex)
	if !ok {
		// allocate the page if we have not already.
		// the guest may reserve large ranges, but we only allocate the pages just in time.
		p = m.AllocPage(pageIndex)
	}
	return p
}

// Load reads a little-endian value of 1, 2, 4 or 8 bytes. The result is zero-extended.
func (m *Memory) Load(addr uint64, size uint64) uint64 {
	if !validWidth(size) {
		panic(fmt.Errorf("load of %d bytes at 0x%x: %w", size, addr, riscv.ErrUnsupportedMemWidth))
	}
	pageAddr := addr & PageAddrMask
	if pageAddr+size > PageSize {
		// crosses a page boundary
		var buf [8]byte
		m.GetUnaligned(addr, buf[:size])
		return binary.LittleEndian.Uint64(buf[:])
	}
	p, ok := m.pageLookup(addr >> PageAddrSize)
	if !ok {
		return 0
	}
	switch size {
	case 1:
		return uint64(p[pageAddr])
	case 2:
		return uint64(binary.LittleEndian.Uint16(p[pageAddr:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(p[pageAddr:]))
	default:
		return binary.LittleEndian.Uint64(p[pageAddr:])
	}
}

// Store writes the low size bytes of v, little-endian.
func (m *Memory) Store(addr uint64, size uint64, v uint64) {
	if !validWidth(size) {
		panic(fmt.Errorf("store of %d bytes at 0x%x: %w", size, addr, riscv.ErrUnsupportedMemWidth))
	}
	pageAddr := addr & PageAddrMask
	if pageAddr+size > PageSize {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		m.SetUnaligned(addr, buf[:size])
		return
	}
	p := m.pageFor(addr)
	switch size {
	case 1:
		p[pageAddr] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(p[pageAddr:], uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(p[pageAddr:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(p[pageAddr:], v)
	}
}

func validWidth(size uint64) bool {
	return size == 1 || size == 2 || size == 4 || size == 8
}

func (m *Memory) SetUnaligned(addr uint64, dat []byte) {
	for len(dat) > 0 {
		p := m.pageFor(addr)
		d := copy(p[addr&PageAddrMask:], dat)
		dat = dat[d:]
		addr += uint64(d)
	}
}

func (m *Memory) GetUnaligned(addr uint64, dest []byte) {
	for len(dest) > 0 {
		pageAddr := addr & PageAddrMask
		var d int
		if p, ok := m.pageLookup(addr >> PageAddrSize); ok {
			d = copy(dest, p[pageAddr:])
		} else {
			l := uint64(PageSize) - pageAddr
			if l > uint64(len(dest)) {
				l = uint64(len(dest))
			}
			clear(dest[:l])
			d = int(l)
		}
		dest = dest[d:]
		addr += uint64(d)
	}
}

type pageEntry struct {
	Index uint64 `json:"index"`
	Data  *Page  `json:"data"`
}

func (m *Memory) sortedPageIndices() []uint64 {
	keys := make([]uint64, 0, len(m.pages))
	for k := range m.pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (m *Memory) MarshalJSON() ([]byte, error) {
	pages := make([]pageEntry, 0, len(m.pages))
	for _, k := range m.sortedPageIndices() {
		pages = append(pages, pageEntry{Index: k, Data: m.pages[k]})
	}
	return json.Marshal(pages)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var pages []pageEntry
	if err := json.Unmarshal(data, &pages); err != nil {
		return err
	}
	m.pages = make(map[uint64]*Page)
	m.lastPageKeys = [2]uint64{^uint64(0), ^uint64(0)}
	m.lastPage = [2]*Page{nil, nil}
	for i, p := range pages {
		if _, ok := m.pages[p.Index]; ok {
			return fmt.Errorf("cannot load duplicate page, entry %d, page index %d", i, p.Index)
		}
		if p.Data == nil {
			return fmt.Errorf("page entry %d (index %d) has no data", i, p.Index)
		}
		m.pages[p.Index] = p.Data
	}
	return nil
}

func (m *Memory) SetMemoryRange(addr uint64, r io.Reader) error {
	for {
		p := m.pageFor(addr)
		n, err := r.Read(p[addr&PageAddrMask:])
		addr += uint64(n)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Serialize writes the memory in a simple binary format which can be read again using Deserialize
// The format is a simple concatenation of fields, with prefixed item count for repeating items and using big endian
// encoding for numbers.
//
// len(PageCount)    uint64
// For each page (in ascending index order):
//
//	page index          uint64
//	page Data           [PageSize]byte
func (m *Memory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, uint64(m.PageCount())); err != nil {
		return err
	}
	for _, pageIndex := range m.sortedPageIndices() {
		if err := binary.Write(out, binary.BigEndian, pageIndex); err != nil {
			return err
		}
		if _, err := out.Write(m.pages[pageIndex][:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Deserialize(in io.Reader) error {
	var pageCount uint64
	if err := binary.Read(in, binary.BigEndian, &pageCount); err != nil {
		return err
	}
	for i := uint64(0); i < pageCount; i++ {
		var pageIndex uint64
		if err := binary.Read(in, binary.BigEndian, &pageIndex); err != nil {
			return err
		}
		page := m.AllocPage(pageIndex)
		if _, err := io.ReadFull(in, page[:]); err != nil {
			return err
		}
	}
	return nil
}

// Digest is the keccak256 hash over all allocated pages, in ascending index order.
// All-zero pages are skipped, so the digest only depends on the memory contents.
func (m *Memory) Digest() common.Hash {
	var zero Page
	h := crypto.NewKeccakState()
	var idx [8]byte
	for _, k := range m.sortedPageIndices() {
		p := m.pages[k]
		if *p == zero {
			continue
		}
		binary.BigEndian.PutUint64(idx[:], k)
		h.Write(idx[:])
		h.Write(p[:])
	}
	var out common.Hash
	h.Read(out[:])
	return out
}

type memReader struct {
	m     *Memory
	addr  uint64
	count uint64
}

func (r *memReader) Read(dest []byte) (n int, err error) {
	if r.count == 0 {
		return 0, io.EOF
	}

	// Keep iterating over memory until we have all our data.
	// It may wrap around the address range, and may not be aligned
	endAddr := r.addr + r.count

	pageIndex := r.addr >> PageAddrSize
	start := r.addr & PageAddrMask
	end := uint64(PageSize)

	if pageIndex == (endAddr >> PageAddrSize) {
		end = endAddr & PageAddrMask
	}
	p, ok := r.m.pageLookup(pageIndex)
	if ok {
		n = copy(dest, p[start:end])
	} else {
		n = copy(dest, make([]byte, end-start)) // default to zeroes
	}
	r.addr += uint64(n)
	r.count -= uint64(n)
	return n, nil
}

func (m *Memory) ReadMemoryRange(addr uint64, count uint64) io.Reader {
	return &memReader{m: m, addr: addr, count: count}
}

// ReadCString reads a NUL-terminated string of at most limit bytes.
func (m *Memory) ReadCString(addr uint64, limit int) (string, error) {
	out := make([]byte, 0, 64)
	for i := 0; i < limit; i++ {
		b := byte(m.Load(addr+uint64(i), 1))
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", fmt.Errorf("string at 0x%x longer than %d bytes", addr, limit)
}

func (m *Memory) Usage() string {
	total := uint64(len(m.pages)) * PageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}
