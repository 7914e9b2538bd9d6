package phrase

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nadzzz/statlg/internal/lattice"
	"github.com/nadzzz/statlg/internal/locale"
	"github.com/nadzzz/statlg/internal/maxent"
	"github.com/nadzzz/statlg/internal/nlp"
)

// CacheVersion is the version written at the head of every cache file.
const CacheVersion = 7

var (
	// ErrCacheVersion is returned for a cache written by another version.
	ErrCacheVersion = errors.New("model cache version mismatch")
	// ErrCacheHash is returned when the cache was trained from other data.
	ErrCacheHash = errors.New("model cache is stale")
	// ErrCacheCorrupt is returned when a cache cannot be decoded.
	ErrCacheCorrupt = errors.New("model cache is corrupt")
)

// maxCount bounds every count read from a cache so a corrupt header cannot
// trigger a huge allocation.
const maxCount = 1 << 20

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) putInt(v int) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, int32(v))
}

func (e *encoder) putBool(v bool) {
	if e.err != nil {
		return
	}
	var b byte
	if v {
		b = 1
	}
	e.err = e.w.WriteByte(b)
}

func (e *encoder) putString(s string) {
	e.putBytes([]byte(s))
}

func (e *encoder) putBytes(b []byte) {
	if e.err != nil {
		return
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(b)))
	if _, e.err = e.w.Write(buf[:n]); e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrCacheCorrupt, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) readInt() int {
	if d.err != nil {
		return 0
	}
	var v int32
	if err := binary.Read(d.r, binary.LittleEndian, &v); err != nil {
		d.fail("reading int32: %v", err)
		return 0
	}
	return int(v)
}

func (d *decoder) readCount(what string) int {
	n := d.readInt()
	if d.err == nil && (n < 0 || n > maxCount) {
		d.fail("%s count %d out of range", what, n)
		return 0
	}
	return n
}

func (d *decoder) readBool() bool {
	if d.err != nil {
		return false
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail("reading bool: %v", err)
		return false
	}
	return b != 0
}

func (d *decoder) readBytes() []byte {
	if d.err != nil {
		return nil
	}
	n, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.fail("reading length: %v", err)
		return nil
	}
	if n > maxCount*16 {
		d.fail("length %d out of range", n)
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.fail("reading %d bytes: %v", n, err)
		return nil
	}
	return b
}

func (d *decoder) readString() string {
	return string(d.readBytes())
}

// Encode writes the model in cache format.
func (p *Phrase) Encode(w io.Writer) error {
	e := &encoder{w: bufio.NewWriter(w)}
	e.putInt(CacheVersion)
	e.putString(p.name)
	e.putString(locale.Alpha3(p.locale))
	e.putInt(int(p.hash))

	tags := make([]string, 0, len(p.tagToGroup))
	for tag := range p.tagToGroup {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	e.putInt(len(tags))
	for _, tag := range tags {
		e.putString(tag)
		e.putInt(p.tagToGroup[tag])
	}

	groups := make([]int, 0, len(p.groupToTag))
	for g := range p.groupToTag {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	e.putInt(len(groups))
	for _, g := range groups {
		e.putInt(g)
		e.putString(p.groupToTag[g])
	}

	e.putInt(len(p.groups))
	for _, group := range p.groups {
		e.putInt(len(group.Forms))
		for _, form := range group.Forms {
			e.putInt(len(form))
			for _, tok := range form {
				e.putString(tok.Text)
				e.putString(tok.Tag)
				e.putString(tok.Pre)
				e.putString(tok.Post)
				keys := make([]string, 0, len(tok.Attributes))
				for k := range tok.Attributes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				e.putInt(len(keys))
				for _, k := range keys {
					e.putString(k)
					e.putString(tok.Attributes[k])
				}
			}
		}
	}

	e.putInt(len(p.models))
	for _, m := range p.models {
		e.putBool(m != nil)
		if m == nil {
			continue
		}
		blob, err := m.MarshalBinary()
		if err != nil && e.err == nil {
			e.err = err
		}
		e.putBytes(blob)
	}

	if e.err != nil {
		return fmt.Errorf("encoding model %s: %w", p.name, e.err)
	}
	return e.w.Flush()
}

// DecodeOptions controls how a cache is validated.
type DecodeOptions struct {
	// Hash is the fingerprint of the current training data.
	Hash int32
	// Force accepts the cache without comparing fingerprints.
	Force bool
	// Debug enables decision logging on the decoded model.
	Debug bool
}

// Decode reads a model written by Encode. features is used at render time.
func Decode(r io.Reader, features nlp.FeatureExtractor, opts DecodeOptions) (*Phrase, error) {
	if features == nil {
		return nil, errors.New("decoding model: feature extractor is required")
	}
	d := &decoder{r: bufio.NewReader(r)}

	version := d.readInt()
	if d.err != nil {
		return nil, d.err
	}
	if version != CacheVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrCacheVersion, version, CacheVersion)
	}

	p := &Phrase{features: features, debug: opts.Debug}
	p.name = d.readString()
	loc := d.readString()
	p.hash = int32(d.readInt())
	if d.err != nil {
		return nil, d.err
	}
	tag, err := locale.ParseAlpha3(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	p.locale = tag
	if !opts.Force && p.hash != opts.Hash {
		return nil, ErrCacheHash
	}

	n := d.readCount("tag")
	p.tagToGroup = make(map[string]int, n)
	for i := 0; i < n; i++ {
		name := d.readString()
		p.tagToGroup[name] = d.readInt()
	}
	n = d.readCount("group tag")
	p.groupToTag = make(map[int]string, n)
	for i := 0; i < n; i++ {
		g := d.readInt()
		p.groupToTag[g] = d.readString()
	}

	n = d.readCount("group")
	p.groups = make([]lattice.Group, n)
	for g := range p.groups {
		forms := make([]lattice.SurfaceForm, d.readCount("form"))
		for f := range forms {
			form := make(lattice.SurfaceForm, d.readCount("token"))
			for t := range form {
				tok := lattice.Token{Text: d.readString(), Tag: d.readString(), Pre: d.readString(), Post: d.readString()}
				if na := d.readCount("attribute"); na > 0 {
					tok.Attributes = make(map[string]string, na)
					for a := 0; a < na; a++ {
						k := d.readString()
						tok.Attributes[k] = d.readString()
					}
				}
				form[t] = tok
			}
			forms[f] = form
		}
		p.groups[g].Forms = forms
	}

	n = d.readCount("classifier")
	p.models = make([]*maxent.Model, n)
	for i := range p.models {
		if !d.readBool() {
			continue
		}
		blob := d.readBytes()
		if d.err != nil {
			break
		}
		m := &maxent.Model{}
		if err := m.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("%w: classifier %d: %v", ErrCacheCorrupt, i, err)
		}
		p.models[i] = m
	}
	if d.err != nil {
		return nil, d.err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Phrase) validate() error {
	if len(p.models) != len(p.groups) {
		return fmt.Errorf("%w: %d classifiers for %d groups", ErrCacheCorrupt, len(p.models), len(p.groups))
	}
	for g, tag := range p.groupToTag {
		if g < 0 || g >= len(p.groups) || p.tagToGroup[tag] != g {
			return fmt.Errorf("%w: slot %q maps to bad group %d", ErrCacheCorrupt, tag, g)
		}
		if len(p.groups[g].Forms) == 0 || len(p.groups[g].Forms[0]) == 0 {
			return fmt.Errorf("%w: slot group %d is empty", ErrCacheCorrupt, g)
		}
	}
	for g, group := range p.groups {
		if len(group.Forms) == 0 {
			return fmt.Errorf("%w: group %d has no forms", ErrCacheCorrupt, g)
		}
	}
	return nil
}
