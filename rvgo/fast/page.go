package fast

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// Page is one 4 KiB unit of guest memory.
type Page [PageSize]byte

// MarshalJSON stores the page zlib-compressed; most pages are largely zero.
func (p *Page) MarshalJSON() ([]byte, error) {
	var out bytes.Buffer
	w, err := zlib.NewWriterLevel(&out, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p[:]); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return json.Marshal(out.Bytes())
}

func (p *Page) UnmarshalJSON(dat []byte) error {
	// strip the base64 string and decompress
	var compressed []byte
	if err := json.Unmarshal(dat, &compressed); err != nil {
		return err
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	n, err := io.ReadFull(r, p[:])
	if err != nil {
		return fmt.Errorf("decompressed page is %d bytes: %w", n, err)
	}
	return r.Close()
}
